package liblib

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
)

// Template ids of the "ultra" WebUI endpoints.
const (
	Text2ImageTemplate  = "5d7e67009b344550bc1aa6ccbfa1d7f4"
	Image2ImageTemplate = "07e00af4fc464c7ab55ff906f8acf1b7"
)

// Generation status codes. Anything above StatusSucceeded is a failure.
const (
	StatusSucceeded = 5
)

// ControlType selects how a control image steers generation.
type ControlType string

const (
	ControlLine      ControlType = "line"
	ControlDepth     ControlType = "depth"
	ControlPose      ControlType = "pose"
	ControlIPAdapter ControlType = "IPAdapter"
)

func (t ControlType) valid() bool {
	switch t {
	case ControlLine, ControlDepth, ControlPose, ControlIPAdapter:
		return true
	}
	return false
}

// ControlNet is the optional composition control of a generation.
type ControlNet struct {
	ControlType  ControlType `json:"controlType"`
	ControlImage string      `json:"controlImage"`
}

// ImageSize is an output resolution.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Text2ImageParams configures a text-to-image run. Zero fields take the
// defaults: portrait, 768x1024, one image, 30 steps.
type Text2ImageParams struct {
	Prompt      string      `json:"prompt"`
	AspectRatio string      `json:"aspectRatio,omitempty"`
	ImageSize   *ImageSize  `json:"imageSize,omitempty"`
	ImgCount    int         `json:"imgCount"`
	Steps       int         `json:"steps"`
	ControlNet  *ControlNet `json:"controlnet,omitempty"`
}

// Image2ImageParams configures an image-to-image run. SourceImage and the
// control image may be an http(s) URL or a local file path; local files are
// uploaded first.
type Image2ImageParams struct {
	Prompt      string      `json:"prompt"`
	SourceImage string      `json:"sourceImage"`
	ImgCount    int         `json:"imgCount"`
	ControlNet  *ControlNet `json:"controlnet,omitempty"`
}

type generateRequest struct {
	TemplateUUID   string `json:"templateUuid"`
	GenerateParams any    `json:"generateParams"`
}

// Generation is the handle returned when a run is accepted.
type Generation struct {
	GenerateUUID string `json:"generateUuid"`
}

// Image is one produced picture.
type Image struct {
	ImageURL    string `json:"imageUrl"`
	Seed        int64  `json:"seed"`
	AuditStatus int    `json:"auditStatus"`
}

// Status is the progress of a run.
type Status struct {
	GenerateUUID     string  `json:"generateUuid"`
	GenerateStatus   int     `json:"generateStatus"`
	PercentCompleted float64 `json:"percentCompleted"`
	GenerateMsg      string  `json:"generateMsg"`
	PointsCost       int     `json:"pointsCost"`
	AccountBalance   int     `json:"accountBalance"`
	Images           []Image `json:"images"`
}

// Done reports whether the run finished, successfully or not.
func (s Status) Done() bool { return s.GenerateStatus >= StatusSucceeded }

// Failed reports whether the run finished without images.
func (s Status) Failed() bool { return s.GenerateStatus > StatusSucceeded }

// ImageURLs lists the produced image URLs.
func (s Status) ImageURLs() []string {
	urls := make([]string, 0, len(s.Images))
	for _, img := range s.Images {
		if img.ImageURL != "" {
			urls = append(urls, img.ImageURL)
		}
	}
	return urls
}

// ModelVersion describes a checkpoint or LoRA version.
type ModelVersion struct {
	VersionUUID   string `json:"version_uuid"`
	ModelName     string `json:"model_name"`
	VersionName   string `json:"version_name"`
	BaseAlgo      string `json:"baseAlgo"`
	CommercialUse int    `json:"commercial_use"`
	ModelURL      string `json:"model_url"`
}

// CheckModel looks up a model version by uuid.
func (c *Client) CheckModel(ctx context.Context, versionUUID string) (ModelVersion, error) {
	var mv ModelVersion
	if err := c.call(ctx, pathModelVersion, map[string]string{"versionUuid": versionUUID}, &mv); err != nil {
		return ModelVersion{}, err
	}
	c.log.Info(ctx, "liblib model found", logger.String("version_uuid", versionUUID), logger.String("model_name", mv.ModelName))
	return mv, nil
}

// Status fetches the progress of generateUUID.
func (c *Client) Status(ctx context.Context, generateUUID string) (Status, error) {
	var st Status
	if err := c.call(ctx, pathStatus, map[string]string{"generateUuid": generateUUID}, &st); err != nil {
		return Status{}, err
	}
	if st.GenerateUUID == "" {
		st.GenerateUUID = generateUUID
	}
	return st, nil
}

// Text2Image starts a text-to-image run.
func (c *Client) Text2Image(ctx context.Context, p Text2ImageParams) (Generation, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return Generation{}, fmt.Errorf("%w: prompt must not be empty", ErrInvalidArgument)
	}
	if p.AspectRatio == "" {
		p.AspectRatio = "portrait"
	}
	if p.ImageSize == nil {
		p.ImageSize = &ImageSize{Width: 768, Height: 1024}
	}
	if p.ImgCount == 0 {
		p.ImgCount = 1
	}
	if p.Steps == 0 {
		p.Steps = 30
	}
	if p.ImgCount < 1 || p.ImgCount > 4 {
		return Generation{}, fmt.Errorf("%w: imgCount must be within 1..4", ErrInvalidArgument)
	}

	var g Generation
	err := c.call(ctx, pathText2Image, generateRequest{TemplateUUID: Text2ImageTemplate, GenerateParams: p}, &g)
	if err != nil {
		return Generation{}, err
	}
	c.log.Debug(ctx, "liblib text2image started", logger.String("generate_uuid", g.GenerateUUID))
	return g, nil
}

// Image2Image starts an image-to-image run, uploading local images first.
func (c *Client) Image2Image(ctx context.Context, p Image2ImageParams) (Generation, error) {
	if strings.TrimSpace(p.Prompt) == "" {
		return Generation{}, fmt.Errorf("%w: prompt must not be empty", ErrInvalidArgument)
	}
	if p.ImgCount == 0 {
		p.ImgCount = 1
	}
	if p.ImgCount < 1 || p.ImgCount > 4 {
		return Generation{}, fmt.Errorf("%w: imgCount must be within 1..4", ErrInvalidArgument)
	}
	if p.SourceImage == "" {
		return Generation{}, fmt.Errorf("%w: sourceImage must not be empty", ErrInvalidArgument)
	}

	src, err := c.ensureRemote(ctx, p.SourceImage)
	if err != nil {
		return Generation{}, err
	}
	p.SourceImage = src

	if p.ControlNet != nil {
		if !p.ControlNet.ControlType.valid() {
			return Generation{}, fmt.Errorf("%w: unknown controlType %q", ErrInvalidArgument, p.ControlNet.ControlType)
		}
		cn := *p.ControlNet
		if cn.ControlImage, err = c.ensureRemote(ctx, cn.ControlImage); err != nil {
			return Generation{}, err
		}
		p.ControlNet = &cn
	}

	var g Generation
	err = c.call(ctx, pathImage2Image, generateRequest{TemplateUUID: Image2ImageTemplate, GenerateParams: p}, &g)
	if err != nil {
		return Generation{}, err
	}
	c.log.Debug(ctx, "liblib image2image started", logger.String("generate_uuid", g.GenerateUUID))
	return g, nil
}

// Wait polls the status of generateUUID until it finishes or the max wait
// passes. On ErrWaitExceeded the last seen status is still returned.
func (c *Client) Wait(ctx context.Context, generateUUID string) (Status, error) {
	deadline := c.now().Add(c.maxWait)
	var last Status
	for {
		st, err := c.Status(ctx, generateUUID)
		metrics.RecordLiblibPoll()
		if err != nil {
			return last, err
		}
		last = st

		switch {
		case st.Failed():
			return st, fmt.Errorf("%w: status %d: %s", ErrGenerationFailed, st.GenerateStatus, st.GenerateMsg)
		case st.Done():
			c.log.Info(ctx, "liblib generation succeeded", logger.String("generate_uuid", generateUUID), logger.Int("images", len(st.Images)))
			return st, nil
		}

		if !c.now().Add(c.pollInterval).Before(deadline) {
			c.log.Warn(ctx, "liblib max wait exceeded", logger.String("generate_uuid", generateUUID), logger.Int("status", st.GenerateStatus))
			return last, fmt.Errorf("%w: %s after %s", ErrWaitExceeded, generateUUID, c.maxWait)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return last, err
		}
	}
}

// MaxWait returns the configured wait bound.
func (c *Client) MaxWait() time.Duration { return c.maxWait }

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (c *Client) ensureRemote(ctx context.Context, ref string) (string, error) {
	if ref == "" || isRemote(ref) {
		return ref, nil
	}
	c.log.Info(ctx, "uploading local image", logger.String("path", ref))
	return c.UploadFile(ctx, ref)
}
