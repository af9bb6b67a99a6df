package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sakif/thoughts/internal/apperror"
)

// imageTypes matches both the declared content type and the file extension.
var imageTypes = regexp.MustCompile(`jpeg|jpg|png|jfif`)

// formInput is a parsed request body: text fields plus an optional image.
type formInput struct {
	values map[string]string
	image  []byte
}

func (f formInput) get(name string) string {
	return f.values[name]
}

// readForm accepts multipart/form-data (with an optional file in
// imageField), application/json or a urlencoded body. maxImage bounds the
// image size in bytes.
func readForm(w http.ResponseWriter, r *http.Request, maxImage int64, imageField string, fields ...string) (formInput, error) {
	in := formInput{values: make(map[string]string, len(fields))}

	// Room for the text fields on top of the image.
	r.Body = http.MaxBytesReader(w, r.Body, maxImage+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxImage); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return in, imageTooLarge(imageField, maxImage)
			}
			return in, apperror.ValidationFailed("body", "Invalid form data")
		}
		for _, name := range fields {
			in.values[name] = r.FormValue(name)
		}
		if imageField == "" {
			return in, nil
		}
		img, err := readImage(r, imageField, maxImage)
		if err != nil {
			return in, err
		}
		in.image = img

	case "application/json":
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			return in, err
		}
		for _, name := range fields {
			if s, ok := body[name].(string); ok {
				in.values[name] = s
			}
		}

	default:
		if err := r.ParseForm(); err != nil {
			return in, apperror.ValidationFailed("body", "Invalid form data")
		}
		for _, name := range fields {
			in.values[name] = r.FormValue(name)
		}
	}
	return in, nil
}

// readImage returns the uploaded file or nil when none was sent.
func readImage(r *http.Request, field string, maxImage int64) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ValidationFailed(field, "Invalid file upload")
	}
	defer file.Close()

	if header.Size > maxImage {
		return nil, imageTooLarge(field, maxImage)
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !imageTypes.MatchString(header.Header.Get("Content-Type")) || !imageTypes.MatchString(ext) {
		return nil, apperror.ValidationFailed(field, "Only .png, .jpg and .jpeg .jfif format allowed!")
	}

	data, err := io.ReadAll(io.LimitReader(file, maxImage+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > maxImage {
		return nil, imageTooLarge(field, maxImage)
	}
	return data, nil
}

func imageTooLarge(field string, maxImage int64) error {
	return apperror.ValidationFailed(field, fmt.Sprintf("File too large. Maximum size is %d MB", maxImage>>20))
}
