package main

import (
	"errors"
	"fmt"

	"github.com/okian/unitry/internal/adapters/liblib"
	"github.com/okian/unitry/internal/config"
	"github.com/okian/unitry/pkg/logger"
	"github.com/spf13/cobra"
)

var errMissingKeys = errors.New("liblib access and secret keys are required (UNITRY_LIBLIB_ACCESS_KEY, UNITRY_LIBLIB_SECRET_KEY)")

type generationOutput struct {
	GenerateUUID string         `json:"generate_uuid"`
	Status       *liblib.Status `json:"status,omitempty"`
	Files        []string       `json:"files,omitempty"`
}

func newLiblibClient(cmd *cobra.Command) (*liblib.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.LiblibAccessKey == "" || cfg.LiblibSecretKey == "" {
		return nil, errMissingKeys
	}
	return liblib.New(cfg.LiblibAccessKey, cfg.LiblibSecretKey,
		liblib.WithBaseURL(cfg.LiblibBaseURL),
		liblib.WithMaxWait(config.Millis(cfg.LiblibMaxWaitMS)),
		liblib.WithPollInterval(config.Millis(cfg.LiblibPollIntervalMS)),
		liblib.WithLogger(logger.Get().Named("liblib")),
	), nil
}

func newLiblibCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liblib",
		Short: "Call the LiblibAI OpenAPI",
	}
	cmd.AddCommand(newText2ImageCmd(), newImage2ImageCmd(), newCheckCmd(), newDownloadCmd())
	return cmd
}

// finish waits for gen unless noWait, then downloads the images to out.
func finish(cmd *cobra.Command, c *liblib.Client, gen liblib.Generation, noWait bool, out string) error {
	res := generationOutput{GenerateUUID: gen.GenerateUUID}
	if noWait {
		return printJSON(cmd.OutOrStdout(), res)
	}

	st, err := c.Wait(cmd.Context(), gen.GenerateUUID)
	res.Status = &st
	if err != nil {
		_ = printJSON(cmd.OutOrStdout(), res)
		return fmt.Errorf("generation %s: %w", gen.GenerateUUID, err)
	}
	if out != "" {
		files, err := c.Download(cmd.Context(), st, out)
		if err != nil {
			return fmt.Errorf("failed to download images: %w", err)
		}
		res.Files = files
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func newText2ImageCmd() *cobra.Command {
	var (
		p      liblib.Text2ImageParams
		width  int
		height int
		noWait bool
		out    string
	)
	cmd := &cobra.Command{
		Use:   "text2image",
		Short: "Generate images from a prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newLiblibClient(cmd)
			if err != nil {
				return err
			}
			if width > 0 || height > 0 {
				p.ImageSize = &liblib.ImageSize{Width: width, Height: height}
			}
			gen, err := c.Text2Image(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("text2image: %w", err)
			}
			return finish(cmd, c, gen, noWait, out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.Prompt, "prompt", "p", "", "Prompt text (required)")
	f.StringVar(&p.AspectRatio, "aspect", "", "Aspect ratio: square, portrait or landscape")
	f.IntVar(&width, "width", 0, "Output width (with --height)")
	f.IntVar(&height, "height", 0, "Output height (with --width)")
	f.IntVarP(&p.ImgCount, "count", "n", 1, "Number of images (1-4)")
	f.IntVar(&p.Steps, "steps", 0, "Sampling steps")
	f.BoolVar(&noWait, "no-wait", false, "Print the generate uuid without waiting")
	f.StringVarP(&out, "out", "o", "", "Save images to this path (stem_N.ext for several)")
	if err := cmd.MarkFlagRequired("prompt"); err != nil {
		panic(fmt.Sprintf("failed to mark prompt flag as required: %v", err))
	}
	return cmd
}

func newImage2ImageCmd() *cobra.Command {
	var (
		p            liblib.Image2ImageParams
		controlType  string
		controlImage string
		noWait       bool
		out          string
	)
	cmd := &cobra.Command{
		Use:   "image2image",
		Short: "Generate images from a source image and prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newLiblibClient(cmd)
			if err != nil {
				return err
			}
			if controlImage != "" {
				p.ControlNet = &liblib.ControlNet{ControlType: liblib.ControlType(controlType), ControlImage: controlImage}
			}
			gen, err := c.Image2Image(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("image2image: %w", err)
			}
			return finish(cmd, c, gen, noWait, out)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.Prompt, "prompt", "p", "", "Prompt text (required)")
	f.StringVarP(&p.SourceImage, "source", "s", "", "Source image URL or local file (required)")
	f.IntVarP(&p.ImgCount, "count", "n", 1, "Number of images (1-4)")
	f.StringVar(&controlType, "control-type", string(liblib.ControlIPAdapter), "Control type: line, depth, pose or IPAdapter")
	f.StringVar(&controlImage, "control-image", "", "Control image URL or local file")
	f.BoolVar(&noWait, "no-wait", false, "Print the generate uuid without waiting")
	f.StringVarP(&out, "out", "o", "", "Save images to this path (stem_N.ext for several)")
	for _, name := range []string{"prompt", "source"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <version-uuid>",
		Short: "Look up a model version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newLiblibClient(cmd)
			if err != nil {
				return err
			}
			mv, err := c.CheckModel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("check model: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), mv)
		},
	}
}

func newDownloadCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <generate-uuid>",
		Short: "Fetch the status of a generation and save its images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newLiblibClient(cmd)
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			files, err := c.Download(cmd.Context(), st, out)
			if err != nil {
				return fmt.Errorf("failed to download images: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), generationOutput{GenerateUUID: args[0], Status: &st, Files: files})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "image_text2image.png", "Save images to this path")
	return cmd
}
