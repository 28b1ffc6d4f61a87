/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseXML(t *testing.T) {
	t.Run("nested document", func(t *testing.T) {
		root, err := ParseXML(strings.NewReader(`
<NATION id="testlandia">
	<NAME>Testlandia</NAME>
	<FREEDOM>
		<CIVILRIGHTS>Excellent</CIVILRIGHTS>
		<ECONOMY>Strong</ECONOMY>
	</FREEDOM>
	<ENDORSEMENTS/>
</NATION>`))
		require.NoError(t, err)

		require.Equal(t, "NATION", root.Name)
		require.Equal(t, "testlandia", root.Attr("id"))
		require.Equal(t, "Testlandia", root.Get("NAME"))
		require.Equal(t, "Testlandia", root.Get("name"))

		freedom := root.Find("FREEDOM")
		require.NotNil(t, freedom)
		require.Len(t, freedom.Children, 2)
		require.Equal(t, "Excellent", freedom.Get("CIVILRIGHTS"))

		require.Equal(t, "", root.Get("ENDORSEMENTS"))
		require.Nil(t, root.Find("MOTTO"))
		require.Equal(t, "", root.Get("MOTTO"))
	})

	t.Run("repeated children", func(t *testing.T) {
		root, err := ParseXML(strings.NewReader(
			`<WA><RESOLUTION>First</RESOLUTION><RESOLUTION>Second</RESOLUTION></WA>`))
		require.NoError(t, err)

		all := root.FindAll("RESOLUTION")
		require.Len(t, all, 2)
		require.Equal(t, "First", all[0].Text)
		require.Equal(t, "Second", all[1].Text)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := ParseXML(strings.NewReader(`<NATION><NAME>oops</NATION>`))
		require.Error(t, err)
	})

	t.Run("empty document", func(t *testing.T) {
		_, err := ParseXML(strings.NewReader(""))
		require.Error(t, err)
	})
}
