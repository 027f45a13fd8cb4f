package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/hyperjump/kotae/internal/models"
)

// slideNameRe matches slide parts and captures the slide number.
var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t> (and any other attributes).
var atTag = regexp.MustCompile(`<a:t(?:\s[^>]*)?>([^<]*)</a:t>`)

// extractPPTX returns one page per slide in slide-number order; the page index is
// the slide number minus one.
func extractPPTX(content []byte) ([]models.Page, error) {
	zr, err := openZip(content)
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}

	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		slides = append(slides, slide{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]models.Page, 0, len(slides))
	for _, s := range slides {
		data, err := readZipEntry(zr, s.name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		pages = append(pages, models.Page{
			Index: models.PageIndex(s.num - 1),
			Text:  paragraphText(string(data), "</a:p>", atTag),
		})
	}
	return pages, nil
}
