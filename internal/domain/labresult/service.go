package labresult

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/hl7results/gateway/internal/platform/hl7v2"
)

// internalErrorMessage is what callers see for failures that are not
// classified parse errors. The underlying error is only logged.
const internalErrorMessage = "an unexpected error occurred while processing the HL7 message"

// Parser decodes a raw HL7v2 message.
type Parser interface {
	Parse(ctx context.Context, raw string) (*hl7v2.Message, error)
}

type Service struct {
	parser Parser
	logger zerolog.Logger
	cache  *gocache.Cache
	ttl    time.Duration
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache memoizes successful parses for ttl, keyed by the message
// content. A ttl of zero or less disables the cache.
func WithCache(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl <= 0 {
			return
		}
		s.ttl = ttl
		s.cache = gocache.New(ttl, 2*ttl)
	}
}

func NewService(parser Parser, logger zerolog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		parser: parser,
		logger: logger.With().Str("component", "labresult").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Process decodes cmd.Message.
//
// Parse failures and unexpected errors are reported in the returned
// result, never as an error. The error return is used only when ctx is
// already done.
func (s *Service) Process(ctx context.Context, cmd ProcessCommand) (*ProcessResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := cmd.Source
	if source == "" {
		source = SourceUnknown
	}
	log := s.logger.With().Str("source", source).Logger()
	log.Info().Int("bytes", len(cmd.Message)).Msg("processing HL7 message")

	result := &ProcessResult{ID: uuid.New(), Source: source}

	msg, cached, err := s.parse(ctx, cmd.Message)
	result.ProcessedAt = s.now()

	var formatErr *hl7v2.FormatError
	switch {
	case err == nil:
		result.Success = true
		result.Message = msg
		log.Info().
			Str("message_type", msg.MessageType.String()).
			Str("patient_id", msg.Patient.PatientID).
			Int("observations", len(msg.Observations)).
			Int("warnings", len(msg.Warnings)).
			Bool("cached", cached).
			Msg("parsed HL7 message")
		for _, w := range msg.Warnings {
			log.Warn().Int("line", w.Line).Str("segment", w.Segment).Msg(w.Reason)
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	case errors.Is(err, hl7v2.ErrEmptyInput):
		result.ErrorKind = ErrorKindInvalidArgument
		result.ErrorMessage = err.Error()
		log.Warn().Err(err).Msg("invalid HL7 message")
	case errors.As(err, &formatErr):
		result.ErrorKind = ErrorKindInvalidFormat
		result.ErrorMessage = err.Error()
		log.Warn().Err(err).Msg("failed to parse HL7 message")
	default:
		result.ErrorKind = ErrorKindInternal
		result.ErrorMessage = internalErrorMessage
		log.Error().Err(err).Msg("unexpected error processing HL7 message")
	}

	return result, nil
}

// parse runs the parser behind the cache and converts a parser panic
// into an error.
func (s *Service) parse(ctx context.Context, raw string) (msg *hl7v2.Message, cached bool, err error) {
	key := ""
	if s.cache != nil && raw != "" {
		sum := sha256.Sum256([]byte(raw))
		key = hex.EncodeToString(sum[:])
		if v, ok := s.cache.Get(key); ok {
			return v.(*hl7v2.Message), true, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, fmt.Errorf("labresult: parser panic: %v", r)
		}
	}()

	msg, err = s.parser.Parse(ctx, raw)
	if err != nil {
		return nil, false, err
	}
	if msg == nil {
		return nil, false, errors.New("labresult: parser returned no message")
	}
	if key != "" {
		s.cache.Set(key, msg, s.ttl)
	}
	return msg, false, nil
}
