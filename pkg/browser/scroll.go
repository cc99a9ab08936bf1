package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"

	"igfetch/pkg/pacing"
)

// scrollTarget is the part of a page HumanScroll drives
type scrollTarget interface {
	ScrollHeight() (int, error)
	ScrollTo(y int) error
}

// maxScrollSteps stops pages that keep growing while scrolled
const maxScrollSteps = 500

// HumanScroll scrolls from the top to the document height in random steps,
// pausing between them. It returns the number of steps taken.
func HumanScroll(ctx context.Context, target scrollTarget, step pacing.IntRange, delay pacing.Policy) (int, error) {
	height, err := target.ScrollHeight()
	if err != nil {
		return 0, fmt.Errorf("failed to read scroll height: %w", err)
	}

	steps := 0
	for y := 0; y < height && steps < maxScrollSteps; {
		if err := ctx.Err(); err != nil {
			return steps, err
		}
		inc := step.Next()
		if inc <= 0 {
			inc = 1
		}
		y += inc
		if y > height {
			y = height
		}
		if err := target.ScrollTo(y); err != nil {
			return steps, fmt.Errorf("failed to scroll to %d: %w", y, err)
		}
		steps++
		if err := pacing.Wait(ctx, delay); err != nil {
			return steps, err
		}
	}
	return steps, nil
}

type rodScroller struct {
	page *rod.Page
}

func (r rodScroller) ScrollHeight() (int, error) {
	res, err := r.page.Eval(`() => Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

func (r rodScroller) ScrollTo(y int) error {
	_, err := r.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}
