// Package printer echoes the conversation of a run to a terminal, one line
// per message, coloured by role.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/events"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

type Printer struct {
	w             io.Writer
	colors        map[conversation.Role]*color.Color
	errColor      *color.Color
	markdown      bool
	style         string
	maxContentLen int
}

type Option func(*Printer)

// WithColor forces colours on or off. By default they are on when stdout is
// a terminal.
func WithColor(enabled bool) Option {
	return func(p *Printer) {
		for _, c := range p.allColors() {
			if enabled {
				c.EnableColor()
			} else {
				c.DisableColor()
			}
		}
	}
}

// WithMarkdown renders the final answer with glamour using style.
func WithMarkdown(style string) Option {
	return func(p *Printer) {
		p.markdown = true
		p.style = style
	}
}

// WithMaxContentLength truncates message contents longer than n runes. Zero
// prints everything.
func WithMaxContentLength(n int) Option {
	return func(p *Printer) { p.maxContentLen = n }
}

func New(w io.Writer, opts ...Option) *Printer {
	p := &Printer{
		w: w,
		colors: map[conversation.Role]*color.Color{
			conversation.RoleSystem:    color.New(color.FgRed),
			conversation.RoleUser:      color.New(color.FgGreen),
			conversation.RoleAssistant: color.New(color.FgBlue),
			conversation.RoleTool:      color.New(color.FgMagenta),
		},
		errColor: color.New(color.FgRed, color.Bold),
		style:    "dark",
	}

	isTerminal := false
	if f, ok := w.(*os.File); ok {
		isTerminal = isatty.IsTerminal(f.Fd())
	}
	WithColor(isTerminal)(p)

	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Printer) allColors() []*color.Color {
	ret := []*color.Color{p.errColor}
	for _, c := range p.colors {
		ret = append(ret, c)
	}
	return ret
}

func (p *Printer) content(s string) string {
	if p.maxContentLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= p.maxContentLen {
		return s
	}
	return fmt.Sprintf("%s... (%d more characters)", string(r[:p.maxContentLen]), len(r)-p.maxContentLen)
}

// PrintMessage writes m on one line in the colour of its role.
func (p *Printer) PrintMessage(m *conversation.Message) {
	if m == nil {
		return
	}
	c, ok := p.colors[m.Role]
	if !ok {
		c = color.New()
	}

	text := m.String()
	if !m.HasToolCalls() {
		short := *m
		short.Content = p.content(m.Content)
		text = short.String()
	}
	_, _ = c.Fprintln(p.w, text)
}

func (p *Printer) PrintConversation(conv conversation.Conversation) {
	for _, m := range conv {
		p.PrintMessage(m)
	}
}

// PrintFinalAnswer writes the answer of a finished run, rendered as markdown
// when enabled.
func (p *Printer) PrintFinalAnswer(answer string) error {
	if p.markdown {
		styled, err := glamour.Render(answer, p.style)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(p.w, styled)
		return err
	}
	_, err := fmt.Fprintln(p.w, answer)
	return err
}

// HandleEvent echoes the message an event added to the conversation.
func (p *Printer) HandleEvent(_ context.Context, e events.Event) error {
	switch e_ := e.(type) {
	case *events.AgentStarted:
		p.PrintConversation(e_.Conversation)
	case *events.AgentResponse:
		p.PrintMessage(e_.Conversation.Last())
	case *events.ToolCallResponse:
		p.PrintMessage(e_.Result)
	case *events.ToolCallError:
		p.PrintMessage(e_.Conversation.Last())
	case *events.AgentCallError:
		_, _ = p.errColor.Fprintf(p.w, "agent call failed: %s\n", e_.ErrorString)
	case *events.AgentFinished:
		// the answer was already echoed with the response
		if last := e_.Conversation.Last(); p.markdown && last != nil {
			if err := p.PrintFinalAnswer(last.Content); err != nil {
				log.Warn().Err(err).Msg("could not render final answer")
			}
		}
	}
	return nil
}

// Subscribe registers the printer for every event of bus.
func (p *Printer) Subscribe(bus *events.Bus) []events.SubscriptionID {
	return bus.SubscribeAll(p.HandleEvent)
}
