package converter

import (
	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"go.uber.org/zap"
)

const (
	successKey   = "success"
	errorKey     = "error"
	methodURIKey = "methoduri"
	urlKey       = "url"
)

// tagRule rewrites every tag whose key matches.
type tagRule struct {
	key     string
	rewrite func(value string) haystack.Tag
}

// tagRules run in order; the first matching rule wins and unmatched tags pass
// through unchanged.
var tagRules = []tagRule{
	{
		key: successKey,
		rewrite: func(value string) haystack.Tag {
			if value == "true" {
				return haystack.Tag{Key: errorKey, Value: "false"}
			}
			return haystack.Tag{Key: errorKey, Value: "true"}
		},
	},
	{
		key: methodURIKey,
		rewrite: func(value string) haystack.Tag {
			return haystack.Tag{Key: urlKey, Value: value}
		},
	},
}

func rewriteTag(tag zipkinv2.Tag) haystack.Tag {
	for _, rule := range tagRules {
		if rule.key == tag.Key {
			return rule.rewrite(tag.Value)
		}
	}
	return haystack.Tag{Key: tag.Key, Value: tag.Value}
}

// mapTags converts the span's tags in order and appends remote.service_name last.
//
// An incoming remote.service_name tag is only kept, moved to the end, when the
// remote endpoint does not name a service.
func (c *Converter) mapTags(in zipkinv2.InputSpan, ids spanIDs) []haystack.Tag {
	tags := make([]haystack.Tag, 0, len(in.Tags)+1)

	var remote string
	for _, tag := range in.Tags {
		if tag.Key == haystack.RemoteServiceNameKey {
			remote = tag.Value
			continue
		}
		tags = append(tags, rewriteTag(tag))
	}

	if in.Tags.Has(successKey) && in.Tags.Has(errorKey) {
		c.logger.Warn("Span carries both success and error tags, the last error tag wins",
			zap.String("trace_id", ids.traceID),
			zap.String("span_id", ids.spanID))
	}

	if name := in.RemoteServiceName(); name != "" {
		remote = name
	}
	if remote != "" {
		tags = append(tags, haystack.Tag{Key: haystack.RemoteServiceNameKey, Value: remote})
	}
	return tags
}
