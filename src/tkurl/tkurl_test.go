package tkurl

import (
	"net/url"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/thetakeaway/takeaway/src/config"
)

var testID = uuid.MustParse("6f1c1e0e-8a55-4b7e-9c43-4b8f3c4a2d10")

func TestMain(m *testing.M) {
	SetGlobalBaseUrl("http://takeaway.test/")
	defer SetGlobalBaseUrl(config.Config.BaseUrl)
	m.Run()
}

func TestUrl(t *testing.T) {
	t.Run("no query", func(t *testing.T) {
		assert.Equal(t, "http://takeaway.test/api/health", Url("/api/health", nil))
	})
	t.Run("yes query", func(t *testing.T) {
		result := Url("/test/foo", []Q{{"bar", "baz"}, {"empty", ""}, {"zig??", "zig & zag!!"}})
		assert.Equal(t, "http://takeaway.test/test/foo?bar=baz&zig%3F%3F=zig+%26+zag%21%21", result)
	})
}

func TestHealth(t *testing.T) {
	AssertRegexMatch(t, BuildHealth(), RegexHealth, nil)
}

func TestProcessTranscript(t *testing.T) {
	AssertRegexMatch(t, BuildProcessTranscript(), RegexProcessTranscript, nil)
	AssertRegexMatch(t, BuildTranscriptProgress("job-1700000000000"), RegexTranscriptProgress, map[string]string{"jobid": "job-1700000000000"})
	AssertRegexMatch(t, BuildTranscriptProgressWebSocket("abc"), RegexTranscriptProgressWebSocket, map[string]string{"jobid": "abc"})
	AssertNoRegexMatch(t, BuildTranscriptProgressWebSocket("abc"), RegexTranscriptProgress)
}

func TestDigests(t *testing.T) {
	AssertRegexMatch(t, BuildDigests(DigestsFilter{}), RegexDigests, nil)
	assert.Equal(t, "http://takeaway.test/api/digests", BuildDigests(DigestsFilter{}))
	assert.Equal(t,
		"http://takeaway.test/api/digests?featured=true&q=habits&sort=clarity-desc",
		BuildDigests(DigestsFilter{Search: "habits", Sort: "clarity-desc", Featured: true}),
	)
	AssertRegexMatch(t, BuildDigestFilters(), RegexDigestFilters, nil)
	AssertNoRegexMatch(t, BuildDigestFilters(), RegexDigest)

	AssertRegexMatch(t, BuildDigest(testID), RegexDigest, map[string]string{"id": testID.String()})
	AssertRegexMatch(t, BuildDigestExport(testID), RegexDigestExport, map[string]string{"id": testID.String()})
	AssertRegexMatch(t, BuildDigestImage(testID), RegexDigestImage, map[string]string{"id": testID.String()})
	AssertNoRegexMatch(t, "/api/digests/123", RegexDigest)
}

func TestCategories(t *testing.T) {
	AssertRegexMatch(t, BuildCategories(), RegexCategories, nil)
	AssertRegexMatch(t, BuildCategory("personal-growth"), RegexCategory, map[string]string{"slug": "personal-growth"})
	AssertNoRegexMatch(t, "/api/categories/Not A Slug", RegexCategory)
}

func TestMisc(t *testing.T) {
	AssertRegexMatch(t, BuildPodcasts(), RegexPodcasts, nil)
	AssertRegexMatch(t, BuildIdeas(), RegexIdeas, nil)
}

func AssertRegexMatch(t *testing.T, fullUrl string, regex *regexp.Regexp, paramsToVerify map[string]string) {
	t.Helper()
	parsed, err := url.Parse(fullUrl)
	ok := assert.Nilf(t, err, "Full url could not be parsed: %s", fullUrl)
	if !ok {
		return
	}

	requestPath := parsed.Path
	if len(requestPath) == 0 {
		requestPath = "/"
	}
	match := regex.FindStringSubmatch(requestPath)
	if !assert.NotNilf(t, match, "Url did not match regex: [%s] vs [%s]", requestPath, regex.String()) {
		return
	}

	subexpNames := regex.SubexpNames()
	for i, matchedValue := range match {
		paramName := subexpNames[i]
		expectedValue, ok := paramsToVerify[paramName]
		if ok {
			assert.Equalf(t, expectedValue, matchedValue, "Param mismatch for [%s]", paramName)
			delete(paramsToVerify, paramName)
		}
	}
	if len(paramsToVerify) > 0 {
		unmatchedParams := make([]string, 0, len(paramsToVerify))
		for paramName := range paramsToVerify {
			unmatchedParams = append(unmatchedParams, paramName)
		}
		assert.Fail(t, "Expected match groups not found", unmatchedParams)
	}
}

func AssertNoRegexMatch(t *testing.T, fullUrl string, regex *regexp.Regexp) {
	t.Helper()
	parsed, err := url.Parse(fullUrl)
	if assert.Nil(t, err) {
		assert.Nil(t, regex.FindStringSubmatch(parsed.Path), "Url unexpectedly matched regex: [%s] vs [%s]", parsed.Path, regex.String())
	}
}
