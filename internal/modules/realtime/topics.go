// README: Closed set of broadcast topics and subscription parsing.
package realtime

import "strings"

type Topic string

const (
	TopicRides    Topic = "rides"
	TopicDrivers  Topic = "drivers"
	TopicRates    Topic = "rates"
	TopicSettings Topic = "settings"
	TopicPromos   Topic = "promos"
	TopicSurge    Topic = "surge"
	TopicPartners Topic = "partners"
	TopicAirport  Topic = "airport"
)

// AllTopics is fixed; adding a topic is a code change.
var AllTopics = []Topic{
	TopicRides, TopicDrivers, TopicRates, TopicSettings,
	TopicPromos, TopicSurge, TopicPartners, TopicAirport,
}

func ValidTopic(t Topic) bool {
	for _, v := range AllTopics {
		if v == t {
			return true
		}
	}
	return false
}

// ParseTopics reads a comma-separated list, drops unknown names and
// duplicates, and falls back to every topic when nothing valid remains.
func ParseTopics(raw string) []Topic {
	seen := make(map[Topic]bool)
	var out []Topic
	for _, part := range strings.Split(raw, ",") {
		t := Topic(strings.ToLower(strings.TrimSpace(part)))
		if !ValidTopic(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return append([]Topic(nil), AllTopics...)
	}
	return out
}
