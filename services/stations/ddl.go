package stations

import (
	"fmt"
	"strings"
)

// CreateTableSQL returns the CREATE TABLE statement for a station table: a
// serial primary key, the datetime column, the derived albedo column when the
// station has one, then every header field in order.
func CreateTableSQL(st *Station) string {
	t := st.Table()

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
	fmt.Fprintf(&b, "\t%s_ID SERIAL PRIMARY KEY,\n", t.Name)
	fmt.Fprintf(&b, "\t%s timestamp", TimeColumn)
	if st.Albedo != nil {
		fmt.Fprintf(&b, ",\n\t%s real", AlbedoField)
	}
	for _, f := range st.fields {
		fmt.Fprintf(&b, ",\n\t%s %s", f.Name, f.Type.SQLType())
	}
	b.WriteString("\n);")
	return b.String()
}
