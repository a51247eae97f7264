// Package skeleton owns the upload-or-inline decision for rendered pose
// overlays. Pixel rendering and object storage are collaborators; this stage
// never fails, at worst the overlay is absent.
package skeleton

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tiger/pose-feedback-pipeline/internal/normalize"
	"github.com/tiger/pose-feedback-pipeline/internal/observability/telemetry"
	"github.com/tiger/pose-feedback-pipeline/internal/render"
)

// StageTag identifies this stage in errors and telemetry.
const StageTag = "skeleton"

// Renderer turns keypoints into overlay image bytes.
type Renderer interface {
	Render(source []byte, keypoints []normalize.Keypoint) ([]byte, error)
}

// Store uploads overlay bytes. Returning ("", nil) means storage is not
// configured, which is an expected state rather than a failure.
type Store interface {
	Put(ctx context.Context, data []byte, mimeType string) (string, error)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(source []byte, keypoints []normalize.Keypoint) ([]byte, error)

// Render implements Renderer.
func (f RendererFunc) Render(source []byte, keypoints []normalize.Keypoint) ([]byte, error) {
	return f(source, keypoints)
}

// DefaultRenderer draws with the in-process overlay renderer.
func DefaultRenderer() Renderer {
	return RendererFunc(render.Skeleton)
}

// Output is the stage result: at most one of URL and Inline is set.
type Output struct {
	URL    string
	Inline string
}

// Stage renders and places skeleton overlays.
type Stage struct {
	renderer Renderer
	store    Store
}

// New wires the stage; a nil store means upload is never attempted.
func New(renderer Renderer, store Store) *Stage {
	if renderer == nil {
		renderer = DefaultRenderer()
	}
	return &Stage{renderer: renderer, store: store}
}

// Run produces a skeleton overlay for the scored image. Any failure degrades
// to an absent overlay; the caller's result stays successful.
func (s *Stage) Run(ctx context.Context, image []byte, mimeType string, keypoints []normalize.Keypoint) Output {
	if len(keypoints) == 0 {
		return Output{}
	}

	overlay, err := s.renderer.Render(image, keypoints)
	if err != nil {
		telemetry.DefaultEmitter().EmitLog(
			"skeleton_render_failed",
			"warn",
			err.Error(),
			map[string]string{"stage": StageTag},
			telemetry.Correlation{Stage: StageTag},
		)
		return Output{}
	}

	if s.store != nil {
		url, err := s.store.Put(ctx, overlay, render.MimeType)
		if err != nil {
			telemetry.DefaultEmitter().EmitLog(
				"skeleton_upload_failed",
				"warn",
				err.Error(),
				map[string]string{"stage": StageTag},
				telemetry.Correlation{Stage: StageTag},
			)
		} else if url != "" {
			return Output{URL: url}
		}
	}

	return Output{Inline: fmt.Sprintf("data:%s;base64,%s", render.MimeType, base64.StdEncoding.EncodeToString(overlay))}
}
