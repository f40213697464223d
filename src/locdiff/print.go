package locdiff

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fatih/color"
	"golang.org/x/exp/slices"
)

// Fprint writes a human readable rendering of d to w, one line per key
// plus one per changed cell.
func Fprint(w io.Writer, d DiffResult) error {
	bufw := bufio.NewWriter(w)
	for _, kd := range d.Keys {
		var desc string
		switch kd.Type {
		case TypeAdded:
			desc = color.BlueString("CREATE")
		case TypeDeleted:
			desc = color.RedString("DELETE")
		case TypeModified:
			desc = color.GreenString("MODIFY")
		default:
			desc = "UNKNOWN"
		}
		if _, err := fmt.Fprintf(bufw, "%7s %s\n", desc, kd.Key.String()); err != nil {
			return err
		}
		if kd.Description != nil {
			if err := printChange(bufw, "desc", kd.Description.Old, kd.Description.New); err != nil {
				return err
			}
		}
		langs := make([]string, 0, len(kd.Values))
		for lang := range kd.Values {
			langs = append(langs, lang)
		}
		slices.Sort(langs)
		for _, lang := range langs {
			ch := kd.Values[lang]
			if err := printChange(bufw, lang, ch.Old, ch.New); err != nil {
				return err
			}
		}
	}
	return bufw.Flush()
}

func printChange(w io.Writer, label string, oldV, newV *string) error {
	_, err := fmt.Fprintf(w, "\t%s: %s -> %s\n", label, fmtValue(oldV), fmtValue(newV))
	return err
}

func fmtValue(v *string) string {
	if v == nil {
		return "(none)"
	}
	return fmt.Sprintf("%q", *v)
}
