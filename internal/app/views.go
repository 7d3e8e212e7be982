package service

import (
	"context"
	"errors"

	"github.com/okian/unitry/internal/adapters/labels"
	"github.com/okian/unitry/internal/adapters/uploads"
	"github.com/okian/unitry/internal/domain/basepath"
	"github.com/okian/unitry/internal/domain/catalog"
	"github.com/okian/unitry/internal/domain/detect"
	"github.com/okian/unitry/pkg/logger"
	"github.com/okian/unitry/pkg/metrics"
)

// ImageView is a catalog image with its public URL and optional label tag.
type ImageView struct {
	Label    string        `json:"label"`
	URL      string        `json:"url"`
	FileName string        `json:"file_name"`
	Tag      *labels.Label `json:"tag,omitempty"`
}

// CatalogView is everything the pages show for one gender.
type CatalogView struct {
	Gender     catalog.Gender `json:"gender"`
	Look       string         `json:"look"`
	Chosen     ImageView      `json:"chosen"`
	Categories []ImageView    `json:"categories"`
	Final      ImageView      `json:"final"`
}

// UploadView is the public description of a stored upload.
type UploadView struct {
	ID             string        `json:"id"`
	FileName       string        `json:"file_name"`
	ContentType    string        `json:"content_type"`
	Size           int64         `json:"size"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	URL            string        `json:"url"`
	ThumbURL       string        `json:"thumb_url"`
	Classification detect.Result `json:"classification"`
	Replaced       string        `json:"replaced,omitempty"`
}

// Prefixer returns the base-path prefixer used for every URL.
func (s *Service) Prefixer() basepath.Prefixer { return s.prefix }

// APIPrefix returns the JSON API mount point without base path.
func (s *Service) APIPrefix() string { return s.apiPrefix }

func (s *Service) image(ctx context.Context, g catalog.Gender, img catalog.Image, withTag bool) ImageView {
	v := ImageView{Label: img.Label, URL: s.prefix.URL(img.Path), FileName: img.FileName()}
	if withTag {
		if lbl, ok := s.labels.Lookup(ctx, g, v.FileName); ok {
			v.Tag = &lbl
		}
	}
	return v
}

// Catalog returns the chosen outfit and recommendation slots with their
// label tags, and the final look of g.
func (s *Service) Catalog(ctx context.Context, g catalog.Gender) (CatalogView, error) {
	look, err := catalog.DefaultLook(g)
	if err != nil {
		return CatalogView{}, err
	}
	view := CatalogView{
		Gender: g,
		Look:   look.ID,
		Chosen: s.image(ctx, g, look.Chosen, true),
		Final:  s.image(ctx, g, look.Final, false),
	}
	for _, img := range look.Categories {
		view.Categories = append(view.Categories, s.image(ctx, g, img, true))
	}
	return view, nil
}

// Labels returns the label file of g. A failed load yields an empty set.
func (s *Service) Labels(ctx context.Context, g catalog.Gender) labels.Set {
	set, err := s.labels.Load(ctx, g)
	if err != nil {
		return labels.Set{}
	}
	return set
}

// Detect classifies fileName.
func (s *Service) Detect(fileName string) detect.Result {
	res := detect.Classify(fileName)
	metrics.RecordDetection(string(res.Gender))
	return res
}

func (s *Service) uploadView(u uploads.Upload) UploadView {
	base := s.apiPrefix + "/uploads/" + u.ID
	return UploadView{
		ID:          u.ID,
		FileName:    u.FileName,
		ContentType: u.ContentType,
		Size:        u.Size,
		Width:       u.Width,
		Height:      u.Height,
		URL:         s.prefix.URL(base),
		ThumbURL:    s.prefix.URL(base + "/thumb"),
	}
}

// Upload stores data as the session's current image, revoking the previous
// one, and classifies the original file name.
func (s *Service) Upload(ctx context.Context, session, fileName string, data []byte) (UploadView, error) {
	u, replaced, err := s.uploads.Put(ctx, session, fileName, data)
	if err != nil {
		return UploadView{}, err
	}
	v := s.uploadView(u)
	v.Classification = s.Detect(fileName)
	v.Replaced = replaced
	if replaced != "" {
		s.log().Debug(ctx, "previous upload revoked", logger.String("upload_id", replaced))
	}
	return v, nil
}

// UploadByID returns the stored upload with id, bytes included.
func (s *Service) UploadByID(ctx context.Context, id string) (uploads.Upload, error) {
	return s.uploads.Get(ctx, id)
}

// CurrentUpload returns the session's latest upload and its classification.
func (s *Service) CurrentUpload(ctx context.Context, session string) (UploadView, bool) {
	if session == "" {
		return UploadView{}, false
	}
	u, err := s.uploads.Current(ctx, session)
	if err != nil {
		return UploadView{}, false
	}
	v := s.uploadView(u)
	v.Classification = detect.Classify(u.FileName)
	return v, true
}

// RevokeUpload drops the session's current upload.
func (s *Service) RevokeUpload(ctx context.Context, session string) bool {
	return s.uploads.Revoke(ctx, session)
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.uploads.MaxBytes() }

// IsUploadRejection reports whether err is a client-side upload problem.
func IsUploadRejection(err error) bool {
	return errors.Is(err, uploads.ErrTooLarge) ||
		errors.Is(err, uploads.ErrUnsupported) ||
		errors.Is(err, uploads.ErrDecode) ||
		errors.Is(err, uploads.ErrEmpty)
}
