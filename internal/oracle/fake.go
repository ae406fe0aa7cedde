package oracle

import (
	"context"
	"errors"
	"sync"
)

// Fake is a scripted Oracle for tests. Replies are served in order;
// when the script runs out it returns ErrScriptExhausted.
type Fake struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	Prompts []string
}

var ErrScriptExhausted = errors.New("oracle: fake script exhausted")

func NewFake(replies ...string) *Fake {
	return &Fake{replies: replies}
}

// Fail queues an error for the next call instead of a reply.
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, "")
	f.errs = append(f.errs, err)
	return f
}

// Reply queues another scripted reply.
func (f *Fake) Reply(text string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	f.errs = append(f.errs, nil)
	return f
}

func (f *Fake) Infer(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Prompts = append(f.Prompts, prompt)
	if len(f.replies) == 0 {
		return "", ErrScriptExhausted
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}
