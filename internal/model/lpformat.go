package model

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// maxLPLine keeps expression lines of the LP dump readable; long
// expressions wrap onto continuation lines.
const maxLPLine = 100

// WriteLP serializes the model in CPLEX LP text format. Output depends only
// on the model contents, so two identically built models produce identical
// files.
func WriteLP(w io.Writer, m *Model) error {
	bw := bufio.NewWriter(w)
	lp := lpWriter{w: bw, m: m}

	lp.line(`\ ` + m.Name)
	if m.Objective.Direction == Maximize {
		lp.line("Maximize")
	} else {
		lp.line("Minimize")
	}
	lp.expr(" obj:", m.Objective.Terms, nil)
	lp.line("")

	lp.line("Subject To")
	for i := range m.Constraints {
		c := &m.Constraints[i]
		lp.expr(" "+c.Name+":", c.Linear, c.Quad, c.Sense.String()+" "+formatNumber(c.RHS))
	}

	lp.line("Bounds")
	for _, v := range m.Vars {
		switch {
		case v.Kind == Binary && v.Lower == 0 && v.Upper == 1:
		case v.Fixed():
			lp.line(" " + v.Name + " = " + formatNumber(v.Lower))
		case math.IsInf(v.Upper, 1) && v.Lower == 0:
		case math.IsInf(v.Upper, 1):
			lp.line(" " + v.Name + " >= " + formatNumber(v.Lower))
		default:
			lp.line(" " + formatNumber(v.Lower) + " <= " + v.Name + " <= " + formatNumber(v.Upper))
		}
	}

	lp.section("General", Integer)
	lp.section("Binary", Binary)
	lp.line("End")

	if lp.err != nil {
		return lp.err
	}
	return bw.Flush()
}

type lpWriter struct {
	w   *bufio.Writer
	m   *Model
	err error
}

func (lp *lpWriter) line(s string) {
	if lp.err != nil {
		return
	}
	_, lp.err = lp.w.WriteString(s + "\n")
}

func (lp *lpWriter) section(title string, kind Kind) {
	var names []string
	for _, v := range lp.m.Vars {
		if v.Kind == kind {
			names = append(names, v.Name)
		}
	}
	if len(names) == 0 {
		return
	}
	lp.line(title)
	lp.wrap(" ", names)
}

func (lp *lpWriter) expr(prefix string, terms []Term, quad []QuadTerm, suffix ...string) {
	parts := make([]string, 0, len(terms)+len(quad)+3)
	for i, t := range terms {
		parts = append(parts, lp.term(i == 0, t.Coef, lp.m.Vars[t.Var].Name))
	}
	if len(quad) > 0 {
		parts = append(parts, "+ [")
		for i, q := range quad {
			parts = append(parts, lp.term(i == 0, q.Coef, lp.m.Vars[q.X].Name+" * "+lp.m.Vars[q.Y].Name))
		}
		parts = append(parts, "]")
	}
	if len(parts) == 0 {
		parts = append(parts, "0")
	}
	parts = append(parts, suffix...)
	lp.wrap(prefix, parts)
}

func (lp *lpWriter) term(first bool, coef float64, name string) string {
	sign := "+ "
	if coef < 0 {
		sign = "- "
		coef = -coef
	}
	if first && sign == "+ " {
		sign = ""
	}
	if coef == 1 {
		return sign + name
	}
	return sign + formatNumber(coef) + " " + name
}

func (lp *lpWriter) wrap(prefix string, parts []string) {
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, p := range parts {
		if sb.Len()+len(p)+1 > maxLPLine && sb.Len() > len(prefix) {
			lp.line(sb.String())
			sb.Reset()
			sb.WriteString("  ")
		}
		sb.WriteString(" ")
		sb.WriteString(p)
	}
	lp.line(sb.String())
}

func formatNumber(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	if math.IsInf(v, -1) {
		return "-inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
