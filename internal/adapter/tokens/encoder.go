package tokens

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

var ErrNoEncoder = errors.New("no encoder for model")

// Encoder counts tokens in text for one model
type Encoder interface {
	Count(text string) (int, error)
}

// EncoderFactory builds an encoder for a model name. Construction is assumed expensive.
type EncoderFactory func(model string) (Encoder, error)

// TiktokenFactory resolves the model directly, then its base name (gpt-oss:20b -> gpt-oss),
// then the fallback encoding if one is configured
func TiktokenFactory(fallbackEncoding string) EncoderFactory {
	return func(model string) (Encoder, error) {
		if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return codecEncoder{codec}, nil
		}
		if base := BaseModelName(model); base != model {
			if codec, err := tokenizer.ForModel(tokenizer.Model(base)); err == nil {
				return codecEncoder{codec}, nil
			}
		}
		if fallbackEncoding != "" {
			codec, err := tokenizer.Get(tokenizer.Encoding(fallbackEncoding))
			if err != nil {
				return nil, fmt.Errorf("fallback encoding %q: %w", fallbackEncoding, err)
			}
			return codecEncoder{codec}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNoEncoder, model)
	}
}

type codecEncoder struct {
	codec tokenizer.Codec
}

func (e codecEncoder) Count(text string) (int, error) {
	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// BaseModelName strips any namespace prefix and tag suffix: "library/llama3:8b" -> "llama3"
func BaseModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}
	return model
}
