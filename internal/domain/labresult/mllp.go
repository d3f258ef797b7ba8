package labresult

import (
	"context"

	"github.com/hl7results/gateway/internal/platform/hl7v2"
)

// SourceMLLP is the source recorded for messages received over MLLP.
const SourceMLLP = "MLLP"

// MLLPHandler adapts the service to the MLLP listener. Every message is
// acknowledged: AA when decoded, AR when rejected as empty or malformed,
// AE for anything else.
func MLLPHandler(svc *Service) hl7v2.MessageHandler {
	return func(ctx context.Context, raw []byte) []byte {
		text := string(raw)
		result, err := svc.Process(ctx, ProcessCommand{Message: text, Source: SourceMLLP})
		if err != nil {
			return hl7v2.BuildACK(text, hl7v2.AckError, "processing cancelled")
		}
		return hl7v2.BuildACK(text, ackCode(result.ErrorKind), result.ErrorMessage)
	}
}

func ackCode(kind ErrorKind) hl7v2.AckCode {
	switch kind {
	case ErrorKindNone:
		return hl7v2.AckAccept
	case ErrorKindInvalidArgument, ErrorKindInvalidFormat:
		return hl7v2.AckReject
	default:
		return hl7v2.AckError
	}
}
