package mqtt

import "strings"

// TopicMatches reports whether a concrete topic matches a subscription
// filter using standard MQTT wildcard semantics:
//
//   - "+" matches exactly one topic level
//   - "#" matches the remainder of the topic and must be the last segment
//   - any other segment must match literally
//
// For filters without "#", the segment counts must match exactly:
// "devices/+" does not match "devices/123/status".
func TopicMatches(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, fp := range filterParts {
		if fp == "#" {
			// "#" must be the final filter segment; it matches the rest
			// of the topic, including zero remaining levels.
			return i == len(filterParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if fp != "+" && fp != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}
