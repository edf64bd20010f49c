// Package ai rewords canned replies so direct chats read less robotic.
// It is optional; without an API key the dispatcher sends the canned
// text unchanged.
package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"meshmon/config"
)

// historyLimit caps the remembered exchanges per station.
const historyLimit = 6

type exchange struct {
	them string
	us   string
}

// Rephraser rewrites a canned reply using Gemini, carrying one
// conversation per sender so follow-up chats do not start cold.
type Rephraser struct {
	client *genai.Client
	model  string

	mu    sync.Mutex
	chats map[string][]exchange
}

// New creates a Rephraser, or (nil, nil) when AI is disabled so callers
// can pass the result straight through.
func New(ctx context.Context, cfg config.AIConfig) (*Rephraser, error) {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &Rephraser{client: client, model: model, chats: make(map[string][]exchange)}, nil
}

// Rephrase rewords text as a short radio-style reply to sender. Mesh
// messages are capped around 200 bytes, so the prompt insists on
// brevity and the result is truncated as a backstop.
func (r *Rephraser) Rephrase(ctx context.Context, sender, text, hint string) (string, error) {
	prompt := r.prompt(sender, text, hint)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := r.client.Models.GenerateContent(ctx, r.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("genai generate: %w", err)
	}

	out := strings.TrimSpace(result.Text())
	if out == "" {
		return "", fmt.Errorf("genai returned empty text")
	}
	if len(out) > 200 {
		out = out[:200]
	}
	r.remember(sender, hint, out)
	return out, nil
}

// prompt folds the sender's recent exchanges into the instruction so
// the model answers in context.
func (r *Rephraser) prompt(sender, text, hint string) string {
	var b strings.Builder
	b.WriteString("You are a packet radio station operator. Reword the following reply in one short sentence, " +
		"plain ASCII, under 180 characters, keeping all facts.")
	r.mu.Lock()
	for _, ex := range r.chats[sender] {
		fmt.Fprintf(&b, " Earlier the station said %q and you replied %q.", ex.them, ex.us)
	}
	r.mu.Unlock()
	fmt.Fprintf(&b, " Incoming message: %q. Reply to reword: %q", hint, text)
	return b.String()
}

func (r *Rephraser) remember(sender, them, us string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hist := append(r.chats[sender], exchange{them: them, us: us})
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	r.chats[sender] = hist
}
