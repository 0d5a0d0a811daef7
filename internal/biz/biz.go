package biz

import (
	"github.com/rs/zerolog"

	"github.com/DevRickLin/chat-relay/internal/biz/repo"
	"github.com/DevRickLin/chat-relay/internal/biz/usecase"
)

// Store is the conversation log together with its pending buffers
type Store interface {
	repo.ConversationRepo
	repo.BufferRepo
}

// Options configures the usecase layer
type Options struct {
	Trigger usecase.TriggerConfig
	Prompt  usecase.PromptConfig
	Reply   usecase.ReplyConfig
}

// Usecases contains all usecases
type Usecases struct {
	Policy  usecase.TriggerPolicy
	Buffer  *usecase.BufferUsecase
	Context *usecase.ContextBuilderUsecase
	Cycle   *usecase.ReplyCycleUsecase
}

// NewUsecases builds the usecase layer on top of its collaborators
func NewUsecases(store Store, reasoning repo.ReasoningRepo, sink repo.ReplyRepo, opts Options, log zerolog.Logger) (*Usecases, error) {
	policy, err := usecase.NewTriggerPolicy(opts.Trigger)
	if err != nil {
		return nil, err
	}

	bufferUC := usecase.NewBufferUsecase(store)
	contextUC := usecase.NewContextBuilderUsecase(store, opts.Prompt, opts.Reply.WindowSize)
	cycleUC := usecase.NewReplyCycleUsecase(store, bufferUC, contextUC, policy, reasoning, sink, opts.Reply, log)

	return &Usecases{
		Policy:  policy,
		Buffer:  bufferUC,
		Context: contextUC,
		Cycle:   cycleUC,
	}, nil
}
