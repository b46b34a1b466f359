// Package transcriber turns recorded conversations into speaker-labelled
// transcripts by delegating to a diarizing speech-recognition model.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrModelLoad reports that the transcription model could not be loaded
	ErrModelLoad = errors.New("could not load transcription model")
	// ErrTranscription reports that the model failed on the given audio
	ErrTranscription = errors.New("could not transcribe audio")
	// ErrInvalidRequest reports a request that failed validation
	ErrInvalidRequest = errors.New("invalid transcription request")
)

// Model is a diarizing speech-to-text model. Transcribe returns text made of
// lines shaped like "SPEAKER_0 (00:00:01 ; 00:00:04): hello".
type Model interface {
	Load(ctx context.Context) error
	Transcribe(ctx context.Context, req Request) (string, error)
	Close() error
}

// DefaultLanguage is used when a caller leaves Request.Language empty
const DefaultLanguage = "english"

// Request describes one recording to transcribe
type Request struct {
	Audio       io.Reader `json:"-" validate:"-"`
	FileName    string    `json:"file_name"`
	Language    string    `json:"language" validate:"oneof=english spanish french german italian"`
	NumSpeakers int       `json:"num_speakers" validate:"min=1,max=10"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return strings.ToLower(fld.Name)
			}
			return name
		})
	})
	return validate
}

// Validate checks the request fields
func (r *Request) Validate() error {
	var messages []string
	if r.Audio == nil {
		messages = append(messages, "audio: is required")
	}

	if err := getValidator().Struct(r); err != nil {
		var fieldErrors validator.ValidationErrors
		if !errors.As(err, &fieldErrors) {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		for _, fe := range fieldErrors {
			messages = append(messages, fe.Field()+": "+describeFieldError(fe))
		}
	}

	if len(messages) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(messages, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
