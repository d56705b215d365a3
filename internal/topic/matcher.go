package topic

import "strings"

// Matches reports whether topic matches filter, per spec.md §4.4/§6:
// '+' matches exactly one level, '#' matches any number of trailing
// levels (including zero) and must be the filter's last level, and
// topics beginning with '$' are excluded from a wildcard match at
// position 0 only.
func Matches(filter, topic string) bool {
	filterLevels := SplitLevelsRaw(filter)
	topicLevels := SplitLevelsRaw(topic)
	isSysTopic := strings.HasPrefix(topic, "$")
	return matchLevels(filterLevels, topicLevels, 0, isSysTopic)
}

func matchLevels(filterLevels, topicLevels []string, depth int, isSysTopic bool) bool {
	if depth == len(filterLevels) {
		return depth == len(topicLevels)
	}

	level := filterLevels[depth]

	if level == "#" {
		if depth == 0 && isSysTopic {
			return false
		}
		return depth == len(filterLevels)-1
	}

	if depth >= len(topicLevels) {
		return false
	}

	if level == "+" {
		if depth == 0 && isSysTopic {
			return false
		}
		return matchLevels(filterLevels, topicLevels, depth+1, isSysTopic)
	}

	if level != topicLevels[depth] {
		return false
	}
	return matchLevels(filterLevels, topicLevels, depth+1, isSysTopic)
}

// FilterCovers reports whether every topic matched by requestFilter is
// also matched by ruleFilter — i.e. ruleFilter is at least as broad.
// Used for ACL evaluation of a SUBSCRIBE request (spec.md §4.6), where a
// plain topic-wildcard match is insufficient: treating the request as a
// topic, a rule of "a/+" would match a request for "a/#", although "a/#"
// receives messages (such as "a/b/c") that "a/+" does not. FilterCovers
// admits "a/+" under "a/#" but not "a/#" under "a/+".
func FilterCovers(ruleFilter, requestFilter string) bool {
	return coversLevels(SplitLevelsRaw(ruleFilter), SplitLevelsRaw(requestFilter), 0)
}

func coversLevels(ruleLevels, requestLevels []string, depth int) bool {
	if depth == len(ruleLevels) {
		return depth == len(requestLevels)
	}

	ruleLevel := ruleLevels[depth]

	if ruleLevel == "#" {
		return true
	}

	if depth >= len(requestLevels) {
		return false
	}
	requestLevel := requestLevels[depth]

	if requestLevel == "#" {
		return false
	}

	if ruleLevel == "+" {
		return coversLevels(ruleLevels, requestLevels, depth+1)
	}

	if ruleLevel != requestLevel {
		return false
	}
	return coversLevels(ruleLevels, requestLevels, depth+1)
}

// SplitLevelsRaw splits by '/' without validation (topics/filters are
// validated separately before reaching the matcher).
func SplitLevelsRaw(path string) []string {
	if len(path) == 0 {
		return []string{""}
	}
	levels := make([]string, 0, 8)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			levels = append(levels, path[start:i])
			start = i + 1
		}
	}
	return append(levels, path[start:])
}
