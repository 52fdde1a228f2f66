package questionnaire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	require.NotEmpty(t, c.Domains)
	assert.Equal(t, "physical", c.Domains[0].ID)
	assert.Greater(t, c.TotalQuestions(), len(c.Domains))

	sensitive := 0
	for _, d := range c.Domains {
		for _, q := range d.Questions {
			if q.SensitiveTopic != "" {
				sensitive++
			}
		}
	}
	assert.Positive(t, sensitive)
}

func TestCatalog_Lookups(t *testing.T) {
	c := testCatalog()

	assert.Nil(t, c.Domain(-1))
	assert.Nil(t, c.Domain(len(c.Domains)))
	assert.Equal(t, "b", c.Domain(1).ID)

	assert.Nil(t, c.Question(0, 5))
	assert.Nil(t, c.Question(9, 0))
	assert.Equal(t, "b2", c.Question(1, 1).ID)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"domain without questions": `
[[domains]]
id = "a"
description = "A"
`,
		"duplicate domain": `
[[domains]]
id = "a"
description = "A"
  [[domains.questions]]
  id = "q"
  text = "Q"
[[domains]]
id = "a"
description = "Again"
  [[domains.questions]]
  id = "q"
  text = "Q"
`,
		"duplicate question": `
[[domains]]
id = "a"
description = "A"
  [[domains.questions]]
  id = "q"
  text = "Q"
  [[domains.questions]]
  id = "q"
  text = "Q2"
`,
		"unknown question type": `
[[domains]]
id = "a"
description = "A"
  [[domains.questions]]
  id = "q"
  text = "Q"
  type = "slider"
`,
		"empty": ``,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "domains.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[domains]]
id = "only"
description = "Only domain"
  [[domains.questions]]
  id = "q1"
  text = "First?"
`), 0644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, c.Domains, 1)
	assert.Equal(t, 1, c.TotalQuestions())

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
