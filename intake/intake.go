// Package intake accepts raw photo files, normalizes formats the rest of the
// pipeline cannot display, and owns the preview resources produced for each
// accepted file. No network calls happen here.
package intake

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/google/uuid"

	"snaglog/metrics"
	"snaglog/models"
)

// MaxPhotoBytes is the per-photo size cap.
const MaxPhotoBytes = 10 * 1024 * 1024

// allowedTypes is the raster image allowlist. Anything else is rejected at
// accept time.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// Photo is one accepted file: the bytes that will be uploaded plus the
// preview handle for display.
type Photo struct {
	ID          string
	FileName    string
	ContentType string
	Data        []byte
	Preview     *Preview
}

// Preview is a displayable rendition of an accepted photo. It must be
// released exactly once when no longer displayed.
type Preview struct {
	ID   string
	mu   sync.Mutex
	data []byte
}

// Bytes returns the preview image data, or nil after release.
func (p *Preview) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// Release frees the preview resource. Only the first call has any effect;
// it reports whether this call performed the release.
func (p *Preview) Release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return false
	}
	p.data = nil
	metrics.PreviewsActive.Dec()
	return true
}

// Intake collects photos for one report draft.
type Intake struct {
	maxBytes int64

	mu     sync.Mutex
	photos []*Photo
}

// New creates an intake with the given per-photo size cap. A non-positive cap
// falls back to MaxPhotoBytes.
func New(maxBytes int64) *Intake {
	if maxBytes <= 0 {
		maxBytes = MaxPhotoBytes
	}
	return &Intake{maxBytes: maxBytes}
}

// Accept validates one raw file and adds it to the intake. HEIC/HEIF files
// are converted to JPEG; if conversion fails the original bytes are kept and
// the failure is logged, never fatal. Every accepted file gets exactly one
// preview.
func (in *Intake) Accept(fileName, declaredType string, data []byte) (*Photo, error) {
	if int64(len(data)) > in.maxBytes {
		return nil, fmt.Errorf("photo %s exceeds maximum size of %d bytes", fileName, in.maxBytes)
	}

	contentType := resolveType(fileName, declaredType, data)
	if !allowedTypes[contentType] {
		return nil, fmt.Errorf("unsupported photo type %s for %s", contentType, fileName)
	}

	uploadName := fileName
	uploadData := data
	uploadType := contentType

	if isHEIC(contentType) {
		converted, err := transcodeToJPEG(data)
		if err != nil {
			log.Warnf("HEIC conversion failed for %s, keeping original: %v", fileName, err)
		} else {
			uploadData = converted
			uploadType = "image/jpeg"
			uploadName = jpegName(fileName)
		}
	}

	preview := &Preview{
		ID:   uuid.NewString(),
		data: renderPreview(uploadData),
	}
	metrics.PreviewsActive.Inc()

	photo := &Photo{
		ID:          uuid.NewString(),
		FileName:    uploadName,
		ContentType: uploadType,
		Data:        uploadData,
		Preview:     preview,
	}

	in.mu.Lock()
	in.photos = append(in.photos, photo)
	in.mu.Unlock()

	log.Infof("Accepted photo %s (%s, %d bytes)", uploadName, uploadType, len(uploadData))
	return photo, nil
}

// Remove drops the photo with the given ID and releases its preview.
func (in *Intake) Remove(photoID string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i, p := range in.photos {
		if p.ID == photoID {
			p.Preview.Release()
			in.photos = append(in.photos[:i], in.photos[i+1:]...)
			return true
		}
	}
	return false
}

// ReleaseAll releases every preview still held. Called on navigation away
// from the draft.
func (in *Intake) ReleaseAll() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, p := range in.photos {
		p.Preview.Release()
	}
}

// Count returns the number of accepted photos.
func (in *Intake) Count() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.photos)
}

// Files returns the accepted photos as upload-ready files, in accept order.
func (in *Intake) Files() []models.PhotoFile {
	in.mu.Lock()
	defer in.mu.Unlock()
	files := make([]models.PhotoFile, 0, len(in.photos))
	for _, p := range in.photos {
		files = append(files, models.PhotoFile{
			FileName:    p.FileName,
			ContentType: p.ContentType,
			Data:        p.Data,
		})
	}
	return files
}

// Photos returns the accepted photos, in accept order.
func (in *Intake) Photos() []*Photo {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]*Photo, len(in.photos))
	copy(out, in.photos)
	return out
}

func resolveType(fileName, declaredType string, data []byte) string {
	t := strings.ToLower(strings.TrimSpace(declaredType))
	if t == "" || t == "application/octet-stream" {
		// HEIC is not recognized by content sniffing, so check the
		// extension before falling back to the detector.
		switch strings.ToLower(filepath.Ext(fileName)) {
		case ".heic":
			return "image/heic"
		case ".heif":
			return "image/heif"
		}
		t = http.DetectContentType(data)
	}
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

func isHEIC(contentType string) bool {
	return contentType == "image/heic" || contentType == "image/heif"
}

func jpegName(fileName string) string {
	ext := filepath.Ext(fileName)
	switch strings.ToLower(ext) {
	case ".heic", ".heif":
		return strings.TrimSuffix(fileName, ext) + ".jpg"
	}
	return fileName
}
