package mqtt

import "strings"

// defaultTopicPrefix is used when the config leaves topic_prefix empty.
const defaultTopicPrefix = "housekeeper"

// eventTopic builds the topic for an operation event, e.g.
// "housekeeper/event/plan_created".
func (c *Client) eventTopic(event string) string {
	prefix := c.cfg.TopicPrefix
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return strings.TrimSuffix(prefix, "/") + "/event/" + event
}
