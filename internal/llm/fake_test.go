package llm

import (
	"context"
	"iter"
)

// fakeClient replays canned output.
type fakeClient struct {
	json      string
	jsonErr   error
	chunks    []string
	streamErr error
	prompts   []string
	pulled    int
}

func (f *fakeClient) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.json, f.jsonErr
}

func (f *fakeClient) StreamContent(_ context.Context, prompt string) iter.Seq2[string, error] {
	f.prompts = append(f.prompts, prompt)
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			f.pulled++
			if !yield(c, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func (f *fakeClient) Model() string { return "fake" }

func (f *fakeClient) Close() error { return nil }
