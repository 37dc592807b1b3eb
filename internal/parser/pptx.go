package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mnemo/internal/textclean"
)

var (
	slidePath      = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	numberedHeader = regexp.MustCompile(`^\d+[.\s]`)
	bulletPrefixes = []string{"• ", "- ", "◦ ", "▪ "}
)

// PPTXParser extracts the header lines of every slide. A slide yields one block
// holding its headers joined by newlines.
type PPTXParser struct {
	MinHeaderFontSize float64
	MinHeaderRank     int
	DefaultFontSize   float64
	TitleFontSize     float64
}

func NewPPTXParser() *PPTXParser {
	return &PPTXParser{
		MinHeaderFontSize: 14,
		MinHeaderRank:     3,
		DefaultFontSize:   10,
		TitleFontSize:     28,
	}
}

func (p *PPTXParser) Extensions() []string { return []string{".pptx"} }

func (p *PPTXParser) Parse(ctx context.Context, file string) ([]string, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var blocks []string
	for _, name := range slideOrder(files) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var s slideXML
		if err := decodeXML(files[name], &s); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		if headers := p.slideHeaders(&s); len(headers) > 0 {
			blocks = append(blocks, strings.Join(headers, "\n"))
		}
	}
	return blocks, nil
}

type slideXML struct {
	Tree groupShape `xml:"cSld>spTree"`
}

type groupShape struct {
	Shapes []shape      `xml:"sp"`
	Groups []groupShape `xml:"grpSp"`
}

type shape struct {
	Placeholder *struct {
		Type string `xml:"type,attr"`
	} `xml:"nvSpPr>nvPr>ph"`
	Offset *struct {
		Y int64 `xml:"y,attr"`
	} `xml:"spPr>xfrm>off"`
	Paragraphs []struct {
		Runs []struct {
			Props struct {
				Size int `xml:"sz,attr"`
			} `xml:"rPr"`
			Text string `xml:"t"`
		} `xml:"r"`
	} `xml:"txBody>p"`
}

type paragraphInfo struct {
	text     string
	top      int64
	fontSize float64
}

func (p *PPTXParser) slideHeaders(s *slideXML) []string {
	var paras []paragraphInfo
	p.collect(&s.Tree, &paras)
	sort.SliceStable(paras, func(i, j int) bool { return paras[i].top < paras[j].top })

	var headers []string
	for i, para := range paras {
		var header bool
		switch {
		case i <= p.MinHeaderRank:
			header = para.fontSize >= p.MinHeaderFontSize
		case numberedHeader.MatchString(para.text):
			header = true
		default:
			for _, prefix := range bulletPrefixes {
				if strings.HasPrefix(para.text, prefix) {
					header = true
					break
				}
			}
		}
		if header {
			headers = append(headers, para.text)
		}
	}
	return headers
}

func (p *PPTXParser) collect(g *groupShape, out *[]paragraphInfo) {
	for _, sh := range g.Shapes {
		var top int64
		if sh.Offset != nil {
			top = sh.Offset.Y
		}
		fallback := p.DefaultFontSize
		if sh.Placeholder != nil && (sh.Placeholder.Type == "title" || sh.Placeholder.Type == "ctrTitle") {
			fallback = p.TitleFontSize
		}
		for _, para := range sh.Paragraphs {
			var b strings.Builder
			size := 0.0
			for _, r := range para.Runs {
				b.WriteString(r.Text)
				if size == 0 && r.Props.Size > 0 {
					size = float64(r.Props.Size) / 100
				}
			}
			raw := b.String()
			if raw == "" || !textclean.ValidLine(raw) {
				continue
			}
			if size == 0 {
				size = fallback
			}
			*out = append(*out, paragraphInfo{text: textclean.CleanWhitespace(raw), top: top, fontSize: size})
		}
	}
	for i := range g.Groups {
		p.collect(&g.Groups[i], out)
	}
}

// slideOrder lists slide parts in presentation order, falling back to the
// numeric order of the part names.
func slideOrder(files map[string]*zip.File) []string {
	if ordered := presentationOrder(files); len(ordered) > 0 {
		return ordered
	}
	type numbered struct {
		name string
		n    int
	}
	var slides []numbered
	for name := range files {
		if m := slidePath.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, numbered{name, n})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })
	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

func presentationOrder(files map[string]*zip.File) []string {
	var pres struct {
		SlideIDs []struct {
			RelID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
		} `xml:"sldIdLst>sldId"`
	}
	var rels struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	pf, ok := files["ppt/presentation.xml"]
	if !ok || decodeXML(pf, &pres) != nil {
		return nil
	}
	rf, ok := files["ppt/_rels/presentation.xml.rels"]
	if !ok || decodeXML(rf, &rels) != nil {
		return nil
	}
	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join("ppt", target)
		}
		targets[r.ID] = target
	}
	var names []string
	for _, id := range pres.SlideIDs {
		if name, ok := targets[id.RelID]; ok {
			if _, exists := files[name]; exists {
				names = append(names, name)
			}
		}
	}
	return names
}

func decodeXML(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(io.LimitReader(rc, 64<<20)).Decode(v)
}
