package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/orgforge/internal/domain/model"
)

func TestRenderMarkdown(t *testing.T) {
	assert.Empty(t, RenderMarkdown(""))

	out := RenderMarkdown("some **bold** text")
	assert.Contains(t, out, "<strong>bold</strong>")

	// Script tags never survive sanitization.
	out = RenderMarkdown(`hello <script>alert("x")</script>`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "hello")
}

func TestSerializeTask_RendersDescription(t *testing.T) {
	out := SerializeTask(model.Task{
		ID:          "task-1",
		Description: "fix the *widget*",
	})

	assert.Equal(t, "fix the *widget*", out["description"])
	assert.Contains(t, out["description_rendered"], "<em>widget</em>")
}

func TestSerializeScratchOrg_OmitsCredentials(t *testing.T) {
	org := model.ScratchOrg{
		ID: "org-1",
		Config: model.OrgCredentials{
			OrgID:        "00D1",
			AccessToken:  "secret-token",
			RefreshToken: "secret-refresh",
		},
		UnsavedChanges: model.ChangeSet{"ApexClass": {"Foo", "Bar"}},
	}

	out := SerializeScratchOrg(org)

	for key, value := range out {
		s, ok := value.(string)
		if !ok {
			continue
		}
		assert.NotContains(t, s, "secret-token", "credential leaked under %q", key)
		assert.NotContains(t, s, "secret-refresh", "credential leaked under %q", key)
	}
	_, hasConfig := out["config"]
	assert.False(t, hasConfig)

	assert.Equal(t, true, out["has_unsaved_changes"])
	assert.Equal(t, 2, out["total_unsaved_changes"])
}
