package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/ayusman/safeschool/internal/config"
	"github.com/ayusman/safeschool/internal/detector"
	"github.com/ayusman/safeschool/internal/gallery"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the reference face gallery",
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Validate a gallery file and install it as the configured gallery",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryImport,
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gallery identities and their reference counts",
	Args:  cobra.NoArgs,
	RunE:  runGalleryList,
}

var galleryEnrollCmd = &cobra.Command{
	Use:   "enroll --label <student-id> <image>...",
	Short: "Add reference vectors for a student from photos",
	Long: `Run the face detector on each photo and append the embedding of the
largest face to the gallery under the given label. Photos without a face
are skipped. Use the same detector backend as the recognizer.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGalleryEnroll,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryImportCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryEnrollCmd)

	galleryEnrollCmd.Flags().String("label", "", "Student ID to enroll the photos under")
	galleryEnrollCmd.Flags().String("detector", config.DefaultDetector, "Face backend: insightface or dlib")
	_ = galleryEnrollCmd.MarkFlagRequired("label")
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f, err := gallery.ReadFile(args[0])
	if err != nil {
		return err
	}
	g, err := gallery.Load(f.Names, f.Embs)
	if err != nil {
		return err
	}
	if err := gallery.WriteFile(cfg.Storage.GalleryPath, f); err != nil {
		return err
	}

	fmt.Printf("Imported %d references (%d students, dim %d) into %s\n",
		g.Len(), len(g.Identities()), g.Dim(), cfg.Storage.GalleryPath)
	return nil
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	g, err := gallery.LoadFile(cfg.Storage.GalleryPath)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d references, dim %d\n\n", cfg.Storage.GalleryPath, g.Len(), g.Dim())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tREFERENCES")
	for _, id := range g.Identities() {
		fmt.Fprintf(w, "%s\t%d\n", id.Label, len(id.Entries))
	}
	return w.Flush()
}

func runGalleryEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	label := mustGetString(cmd, "label")
	if label == "" {
		return errors.New("--label must not be empty")
	}

	f, err := gallery.ReadFile(cfg.Storage.GalleryPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		f = &gallery.File{}
	case err != nil:
		return err
	}

	detCfg := detector.DefaultConfig()
	detCfg.Script = cfg.Detector.Script
	detCfg.ModelDir = cfg.Detector.ModelDir
	det, err := detector.New(cfg.Detector.Backend, detCfg)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	defer det.Close()

	bar := progressbar.NewOptions(len(args),
		progressbar.OptionSetDescription("Enrolling "+label),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	added := 0
	for _, path := range args {
		emb, err := embedPhoto(det, path)
		bar.Add(1)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		f.Names = append(f.Names, label)
		f.Embs = append(f.Embs, emb)
		added++
	}
	fmt.Println()

	if added == 0 {
		return errors.New("no faces found, gallery unchanged")
	}
	if _, err := gallery.Load(f.Names, f.Embs); err != nil {
		return fmt.Errorf("enrolled vectors do not fit the gallery (different backend?): %w", err)
	}
	if err := gallery.WriteFile(cfg.Storage.GalleryPath, f); err != nil {
		return err
	}

	fmt.Printf("Added %d of %d photos for %s to %s\n", added, len(args), label, cfg.Storage.GalleryPath)
	return nil
}

// embedPhoto returns the embedding of the largest face in the image at path.
func embedPhoto(det detector.Detector, path string) ([]float64, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, errors.New("cannot read image")
	}
	defer img.Close()

	faces, err := det.Detect(&img)
	if err != nil {
		return nil, err
	}
	face, ok := detector.Largest(faces)
	if !ok {
		return nil, errors.New("no face detected")
	}
	return face.Embedding, nil
}
