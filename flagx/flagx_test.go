package flagx

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchFlags struct {
	Vector    []float32     `flag:"vector" usage:"query vector"`
	Fields    []string      `flag:"fields"`
	TopK      int           `flag:"top-k,k" default:"10"`
	Alpha     float64       `flag:"alpha" default:"0.5"`
	Namespace string        `flag:"namespace,n" required:"true"`
	Values    bool          `flag:"include-values"`
	Timeout   time.Duration `flag:"timeout" default:"2s"`
	ignored   string        `flag:"ignored"`
	Plain     string
}

func newCmd(t *testing.T, target any) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "search", RunE: func(*cobra.Command, []string) error { return nil }}
	require.NoError(t, Bind(cmd, target))
	return cmd
}

func TestBindAndParse(t *testing.T) {
	var req searchFlags
	cmd := newCmd(t, &req)
	require.NoError(t, cmd.ParseFlags([]string{
		"--vector", "0.5,1", "--fields", "title,body", "-k", "3", "-n", "docs", "--include-values", "--timeout", "1m",
	}))
	require.NoError(t, Parse(cmd, &req))

	assert.Equal(t, []float32{0.5, 1}, req.Vector)
	assert.Equal(t, []string{"title", "body"}, req.Fields)
	assert.Equal(t, 3, req.TopK)
	assert.Equal(t, 0.5, req.Alpha)
	assert.Equal(t, "docs", req.Namespace)
	assert.True(t, req.Values)
	assert.Equal(t, time.Minute, req.Timeout)
	assert.Nil(t, cmd.Flags().Lookup("ignored"))
	assert.Nil(t, cmd.Flags().Lookup("Plain"))
}

func TestBind_Defaults(t *testing.T) {
	var req searchFlags
	cmd := newCmd(t, &req)
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, Parse(cmd, &req))

	assert.Equal(t, 10, req.TopK)
	assert.Equal(t, 2*time.Second, req.Timeout)
	assert.Empty(t, req.Vector)
}

func TestBind_Required(t *testing.T) {
	var req searchFlags
	cmd := newCmd(t, &req)
	cmd.SetArgs([]string{"-k", "1"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestBind_Errors(t *testing.T) {
	cmd := &cobra.Command{}
	assert.ErrorContains(t, Bind(cmd, searchFlags{}), "pointer to struct")

	var s string
	assert.ErrorContains(t, Parse(cmd, &s), "pointer to struct")

	var badDefault struct {
		N int `flag:"n" default:"many"`
	}
	assert.ErrorContains(t, Bind(cmd, &badDefault), "invalid default")

	var badType struct {
		M map[string]int `flag:"m"`
	}
	assert.ErrorContains(t, Bind(&cobra.Command{}, &badType), "unsupported field type")

	assert.Panics(t, func() { MustBind(&cobra.Command{}, &badType) })
}

func TestParse_UnboundFlag(t *testing.T) {
	var req struct {
		Name string `flag:"name"`
	}
	err := Parse(&cobra.Command{}, &req)
	assert.ErrorContains(t, err, "name")
}
