package liblib

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/unitry/internal/domain/tryon"
)

// Generator runs try-on requests as image-to-image generations: the model
// photo is the source image and the garment steers the result through an
// IPAdapter control image.
type Generator struct {
	client *Client
	now    func() time.Time
}

// NewGenerator adapts c to tryon.Generator.
func NewGenerator(c *Client) *Generator {
	return &Generator{client: c, now: c.now}
}

// Generate implements tryon.Generator.
func (g *Generator) Generate(ctx context.Context, p tryon.Payload) (tryon.Result, error) {
	start := g.now()
	gen, err := g.client.Image2Image(ctx, Image2ImageParams{
		Prompt:      p.Prompt,
		SourceImage: p.ModelImageURL,
		ImgCount:    1,
		ControlNet: &ControlNet{
			ControlType:  ControlIPAdapter,
			ControlImage: p.GarmentImageURL,
		},
	})
	if err != nil {
		return tryon.Result{}, err
	}

	st, err := g.client.Wait(ctx, gen.GenerateUUID)
	if err != nil {
		return tryon.Result{}, err
	}
	urls := st.ImageURLs()
	if len(urls) == 0 {
		return tryon.Result{}, fmt.Errorf("%w: %s", ErrNoImages, gen.GenerateUUID)
	}

	end := g.now()
	return tryon.Result{
		RequestID:        gen.GenerateUUID,
		ImageURL:         urls[0],
		InferenceSeconds: end.Sub(start).Seconds(),
		CreatedAt:        end.UTC(),
	}, nil
}
