package ansible

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOutput = `
PLAY [update application] ******************************************************

TASK [Gathering Facts] *********************************************************
ok: [srv_a]

TASK [download artifact] *******************************************************
changed: [srv_a]

TASK [restart service] *********************************************************
changed: [srv_a]

TASK [Display update summary] **************************************************
ok: [srv_a] => {
    "msg": [
        "jurws_1: 1.79.2 -> 1.80.0",
        "restart: ok"
    ]
}

PLAY RECAP *********************************************************************
srv_a                      : ok=4    changed=2    unreachable=0    failed=0    skipped=1    rescued=0    ignored=0
srv_b                      : ok=3    changed=1    unreachable=1    failed=1
`

func TestCurrentTask(t *testing.T) {
	name, ok := CurrentTask("TASK [restart service] ****************")
	require.True(t, ok)
	assert.Equal(t, "restart service", name)

	_, ok = CurrentTask("changed: [srv_a]")
	assert.False(t, ok)

	_, ok = CurrentTask("  TASK [indented lines do not count]")
	assert.False(t, ok)
}

func TestParsePlayRecap(t *testing.T) {
	recap := ParsePlayRecap(sampleOutput)
	require.Len(t, recap, 2)

	assert.Equal(t, RecapLine{
		Host: "srv_a", OK: 4, Changed: 2, Skipped: 1,
	}, recap[0])

	assert.Equal(t, RecapLine{
		Host: "srv_b", OK: 3, Changed: 1, Unreachable: 1, Failed: 1,
	}, recap[1])
	assert.True(t, recap[1].Failures())
	assert.False(t, recap[0].Failures())
}

func TestParsePlayRecapIgnoresNonRecapLines(t *testing.T) {
	// Host-like lines outside a PLAY RECAP block must not match
	out := "srv_a : ok=1 changed=0 unreachable=0 failed=0\n"
	assert.Empty(t, ParsePlayRecap(out))
}

func TestPlayRecapRoundTrip(t *testing.T) {
	recap := []RecapLine{
		{Host: "srv_a", OK: 12, Changed: 3, Skipped: 2},
		{Host: "srv_b", OK: 7, Changed: 1, Unreachable: 1, Failed: 2, Rescued: 1, Ignored: 1},
	}
	parsed := ParsePlayRecap(RenderPlayRecap(recap))
	assert.Equal(t, recap, parsed)
}

func TestParseDisplaySummariesArray(t *testing.T) {
	summaries := ParseDisplaySummaries(sampleOutput)
	require.Len(t, summaries, 1)
	assert.Equal(t, "jurws_1: 1.79.2 -> 1.80.0\nrestart: ok", summaries[0])
}

func TestParseDisplaySummariesString(t *testing.T) {
	out := `
TASK [Show rollout summary] ****************************************************
ok: [srv_a] => {
    "msg": "all instances updated"
}
`
	summaries := ParseDisplaySummaries(out)
	require.Len(t, summaries, 1)
	assert.Equal(t, "all instances updated", summaries[0])
}

func TestParseDisplaySummariesDedupes(t *testing.T) {
	out := `
TASK [node summary] ************************************************************
ok: [srv_a] => {
    "msg": "updated"
}

TASK [node summary] ************************************************************
ok: [srv_b] => {
    "msg": "updated"
}
`
	assert.Len(t, ParseDisplaySummaries(out), 1)
}

func TestParseDisplaySummariesSkipsOrdinaryTasks(t *testing.T) {
	out := `
TASK [restart service] *********************************************************
ok: [srv_a] => {
    "msg": "service restarted"
}
`
	assert.Empty(t, ParseDisplaySummaries(out))
}

func TestRenderArgsDeterministic(t *testing.T) {
	args := RenderArgs("playbooks/update.yml", map[string]string{
		"server_name": "srv_a",
		"app_name":    "jurws_1",
		"distr_url":   "https://repo/jurws-1.80.0.jar",
	})
	assert.Equal(t, []string{
		"playbooks/update.yml",
		"-e", "app_name=jurws_1",
		"-e", "distr_url=https://repo/jurws-1.80.0.jar",
		"-e", "server_name=srv_a",
	}, args)
}

func TestVersionFromDistrURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://repo.internal/releases/jurws-1.80.0.jar", "1.80.0"},
		{"https://repo.internal/app-2.0.1-rc1.war", "2.0.1-rc1"},
		{"https://repo.internal/app_noversion.jar", ""},
		{"https://repo.internal/jurws-1.80.0.jar?token=abc", "1.80.0"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, VersionFromDistrURL(tt.url), tt.url)
	}
}
