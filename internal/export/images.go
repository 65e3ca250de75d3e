package export

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/retinalab/dcmexport/internal/dcm"
)

// Encoder writes one normalized frame in a specific image format.
type Encoder func(w io.Writer, img image.Image) error

var encoders = map[string]Encoder{
	"png": png.Encode,
	"jpg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	"jpeg": func(w io.Writer, img image.Image) error {
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	},
	"webp": func(w io.Writer, img image.Image) error {
		return nativewebp.Encode(w, img, nil)
	},
	"bmp": bmp.Encode,
	"tiff": func(w io.Writer, img image.Image) error {
		return tiff.Encode(w, img, nil)
	},
}

// EncoderFor returns the encoder registered for an image format name.
func EncoderFor(format string) (Encoder, bool) {
	enc, ok := encoders[format]
	return enc, ok
}

// Formats lists the supported image format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// imageName builds the file name for one exported frame.
func imageName(inst *dcm.Instance, frameIdx int, format string) string {
	return fmt.Sprintf("%s-%d_%d.%s", inst.Modality.Code(), inst.Accession, frameIdx, format)
}

// renderGroup writes every frame of every instance into dir and returns the
// byte total. An instance whose first frame's file name is already taken
// gets its accession counter bumped until a free slot is found, which keeps
// repeated single-directory exports apart the way the metadata group ids
// expect.
func renderGroup(dir string, instances []*dcm.Instance, format string) (int64, error) {
	enc, ok := EncoderFor(format)
	if !ok {
		return 0, fmt.Errorf("unsupported image format %q", format)
	}

	var total int64
	for _, inst := range instances {
		for exists(filepath.Join(dir, imageName(inst, 0, format))) {
			inst.Accession++
		}
		for i := 0; i < inst.FrameCount; i++ {
			img, err := dcm.NormalizedFrame(inst.Frames[i])
			if err != nil {
				return total, fmt.Errorf("frame %d of %s: %w", i, inst.SourcePath, err)
			}
			n, err := writeImage(filepath.Join(dir, imageName(inst, i, format)), enc, img)
			if err != nil {
				return total, err
			}
			total += n
		}
	}
	return total, nil
}

func writeImage(path string, enc Encoder, img image.Image) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := enc(f, img); err != nil {
		f.Close()
		return 0, fmt.Errorf("encode %s: %w", path, err)
	}
	info, statErr := f.Stat()
	if err := f.Close(); err != nil {
		return 0, err
	}
	if statErr != nil {
		return 0, statErr
	}
	return info.Size(), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
