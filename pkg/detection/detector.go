package detection

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/stuck-inadream/screenspot-pro/pkg/client"
	"github.com/stuck-inadream/screenspot-pro/pkg/processing"
	"github.com/stuck-inadream/screenspot-pro/pkg/reward"
	"github.com/stuck-inadream/screenspot-pro/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this screenshot? Describe it briefly.`

// DefaultPrompt asks for a pixel box. It is formatted with the image width,
// height and the instruction.
const DefaultPrompt = `You are a GUI grounding assistant.

The screenshot is %d pixels wide and %d pixels tall.
Find the user interface element the instruction refers to.

Return the bounding box as [x0,y0,x1,y1] only.

HARD RULES
- Coordinates are integer pixels in this screenshot, origin at the top-left corner.
- x0 < x1 and y0 < y1.
- The box should tightly include the element (icon, button, menu entry or text).
- If the element is not visible, return the box of the most likely region.
- JSON array only. No markdown, no code fences, no comments, no explanation.

Instruction: %s`

// Answer is a model reply after post-processing.
type Answer struct {
	// Text is the raw reply.
	Text string
	// Box is the parsed box in pixels of the queried image, clamped to it.
	Box types.Box
	// Parsed reports whether Text contained a box.
	Parsed bool
	// Normalized reports whether the model answered in [0,1] units.
	Normalized bool
}

// String returns the answer to score: the post-processed box when one
// was found, the raw text otherwise.
func (a Answer) String() string {
	if a.Parsed {
		return a.Box.String()
	}
	return a.Text
}

// Locator asks a grounding model where an instruction points
type Locator struct {
	client    client.GroundingClient
	processor *processing.Processor
	prompt    string
	quality   int
}

// NewLocator creates a new locator with a grounding client
func NewLocator(c client.GroundingClient) *Locator {
	return &Locator{
		client:    c,
		processor: processing.NewProcessor(),
		prompt:    DefaultPrompt,
		quality:   90,
	}
}

// WithPrompt replaces the prompt template. It must take width, height and
// instruction in that order.
func (l *Locator) WithPrompt(prompt string) *Locator {
	l.prompt = prompt
	return l
}

// BuildPrompt formats the prompt for one query.
func (l *Locator) BuildPrompt(width, height int, instruction string) string {
	return fmt.Sprintf(l.prompt, width, height, strings.TrimSpace(instruction))
}

// Locate sends img as is (no further resizing) so the answer is in img's
// pixel frame.
func (l *Locator) Locate(ctx context.Context, model string, img image.Image, instruction string) (Answer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	imgB64, err := l.processor.PrepareImageForModel(img, "jpg", 0, l.quality)
	if err != nil {
		return Answer{}, fmt.Errorf("failed to encode image: %w", err)
	}

	text, err := l.client.Ground(ctx, model, l.BuildPrompt(w, h, instruction), imgB64)
	if err != nil {
		return Answer{}, err
	}
	return postProcess(text, w, h), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (l *Locator) TestVision(ctx context.Context, model string, img image.Image) (string, error) {
	imgB64, err := l.processor.PrepareImageForModel(img, "jpg", 1024, l.quality)
	if err != nil {
		return "", err
	}
	return l.client.SimpleQuery(ctx, model, SimpleTestPrompt, imgB64)
}

func postProcess(text string, width, height int) Answer {
	a := Answer{Text: text}
	box, ok := reward.ParseBox(text)
	if !ok {
		return a
	}
	a.Parsed = true

	// Some models answer in relative units despite the prompt
	if box.X1 <= 1 && box.Y1 <= 1 && box.X0 >= 0 && box.Y0 >= 0 && strings.Contains(text, ".") {
		if rel, ok := parseRelative(text); ok {
			box = rel.ToPixels(width, height)
			a.Normalized = true
		}
	}

	a.Box = clampBox(box, width, height)
	return a
}

// parseRelative reads four fractional coordinates.
func parseRelative(text string) (types.RelBox, bool) {
	var rel types.RelBox
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '.' || r == '-' || (r >= '0' && r <= '9'))
	})
	n := 0
	for _, f := range fields {
		if n == 4 {
			break
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			continue
		}
		rel[n] = clamp(v, 0, 1)
		n++
	}
	return rel, n == 4 && rel[0] < rel[2] && rel[1] < rel[3]
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampBox keeps a box inside a width x height frame and orders its corners.
func clampBox(b types.Box, width, height int) types.Box {
	c := func(v, hi int) int { return max(0, min(hi, v)) }
	x0, x1 := c(b.X0, width), c(b.X1, width)
	y0, y1 := c(b.Y0, height), c(b.Y1, height)
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return types.Box{X0: x0, Y0: y0, X1: x1, Y1: y1}
}
