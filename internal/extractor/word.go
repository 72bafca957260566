package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"html"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"
)

// WordExtractor converts .docx documents to Markdown. The body is rendered
// to HTML first and then converted, so headings, emphasis, lists, tables,
// links and images survive. Embedded images are re-hosted through the
// ImageUploader; an image that cannot be uploaded is dropped.
type WordExtractor struct {
	uploader ImageUploader
	conv     *converter.Converter
	logger   *zap.Logger
}

func NewWordExtractor(uploader ImageUploader, logger *zap.Logger) *WordExtractor {
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
			),
			table.NewTablePlugin(),
		),
	)
	return &WordExtractor{uploader: uploader, conv: conv, logger: logger}
}

func (e *WordExtractor) Kind() Kind { return KindWord }

func (e *WordExtractor) Extensions() []string { return []string{".docx"} }

func (e *WordExtractor) Extract(ctx context.Context, content []byte, filename string) (string, error) {
	if err := checkExtension(filename, e.Extensions()); err != nil {
		return "", err
	}

	htmlDoc, err := e.toHTML(ctx, content)
	if err != nil {
		return "", err
	}

	md, err := e.conv.ConvertString(htmlDoc)
	if err != nil {
		return "", extractionError("convert to markdown: %v", err)
	}

	md = strings.TrimSpace(md)
	if md == "" {
		return "", extractionError("no text in %s", filename)
	}
	return md, nil
}

func (e *WordExtractor) toHTML(ctx context.Context, content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", extractionError("open docx: %v", err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	docXML, err := readZipFile(files, "word/document.xml")
	if err != nil {
		return "", extractionError("read document body: %v", err)
	}
	body, err := parseXMLTree(docXML)
	if err != nil {
		return "", extractionError("parse document body: %v", err)
	}

	r := &docxRenderer{
		ctx:      ctx,
		files:    files,
		rels:     parseRelationships(files),
		styles:   parseStyleNames(files),
		ordered:  parseNumbering(files),
		uploader: e.uploader,
		logger:   e.logger,
		images:   make(map[string]string),
	}
	if b := body.find("body"); b != nil {
		r.renderBlocks(b.children)
	}
	r.closeList()
	return r.out.String(), nil
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// xmlNode is a namespace-stripped element tree; enough for WordprocessingML.
type xmlNode struct {
	name     string
	attrs    map[string]string
	children []*xmlNode
	text     string
}

func parseXMLTree(data []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	root := &xmlNode{name: "#root"}
	stack := []*xmlNode{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top := stack[len(stack)-1]
			if top.name == "t" || top.name == "instrText" {
				top.text += string(t)
			}
		}
	}
	return root, nil
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// find searches depth-first.
func (n *xmlNode) find(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if f := c.find(name); f != nil {
			return f
		}
	}
	return nil
}

func (n *xmlNode) attr(name string) string {
	if n == nil {
		return ""
	}
	return n.attrs[name]
}

func parseRelationships(files map[string]*zip.File) map[string]string {
	rels := map[string]string{}
	data, err := readZipFile(files, "word/_rels/document.xml.rels")
	if err != nil {
		return rels
	}
	tree, err := parseXMLTree(data)
	if err != nil {
		return rels
	}
	if root := tree.child("Relationships"); root != nil {
		for _, rel := range root.children {
			rels[rel.attr("Id")] = rel.attr("Target")
		}
	}
	return rels
}

// parseStyleNames maps style ids to lower-cased display names.
func parseStyleNames(files map[string]*zip.File) map[string]string {
	names := map[string]string{}
	data, err := readZipFile(files, "word/styles.xml")
	if err != nil {
		return names
	}
	tree, err := parseXMLTree(data)
	if err != nil {
		return names
	}
	if root := tree.child("styles"); root != nil {
		for _, s := range root.children {
			if s.name != "style" {
				continue
			}
			names[s.attr("styleId")] = strings.ToLower(s.child("name").attr("val"))
		}
	}
	return names
}

// parseNumbering reports, per numId, whether the list is ordered.
func parseNumbering(files map[string]*zip.File) map[string]bool {
	ordered := map[string]bool{}
	data, err := readZipFile(files, "word/numbering.xml")
	if err != nil {
		return ordered
	}
	tree, err := parseXMLTree(data)
	if err != nil {
		return ordered
	}
	root := tree.child("numbering")
	if root == nil {
		return ordered
	}

	abstract := map[string]bool{}
	for _, n := range root.children {
		if n.name != "abstractNum" {
			continue
		}
		for _, lvl := range n.children {
			if lvl.name == "lvl" && lvl.attr("ilvl") == "0" {
				abstract[n.attr("abstractNumId")] = lvl.child("numFmt").attr("val") != "bullet"
			}
		}
	}
	for _, n := range root.children {
		if n.name == "num" {
			ordered[n.attr("numId")] = abstract[n.child("abstractNumId").attr("val")]
		}
	}
	return ordered
}

type docxRenderer struct {
	ctx      context.Context
	files    map[string]*zip.File
	rels     map[string]string
	styles   map[string]string
	ordered  map[string]bool
	uploader ImageUploader
	logger   *zap.Logger

	images  map[string]string // relationship id -> rewritten URL ("" when skipped)
	out     strings.Builder
	listTag string
}

func (r *docxRenderer) renderBlocks(nodes []*xmlNode) {
	for _, n := range nodes {
		switch n.name {
		case "p":
			r.renderParagraph(n)
		case "tbl":
			r.closeList()
			r.renderTable(n)
		case "sdt":
			if c := n.child("sdtContent"); c != nil {
				r.renderBlocks(c.children)
			}
		}
	}
}

func (r *docxRenderer) renderParagraph(p *xmlNode) {
	props := p.child("pPr")
	inline := r.renderInline(p.children)
	if strings.TrimSpace(stripTags(inline)) == "" && !strings.Contains(inline, "<img") {
		return
	}

	if numPr := props.childOrNil("numPr"); numPr != nil {
		tag := "ul"
		if r.ordered[numPr.child("numId").attr("val")] {
			tag = "ol"
		}
		if r.listTag != tag {
			r.closeList()
			r.out.WriteString("<" + tag + ">")
			r.listTag = tag
		}
		r.out.WriteString("<li>" + inline + "</li>")
		return
	}

	r.closeList()
	if level := r.headingLevel(props); level > 0 {
		tag := "h" + strconv.Itoa(level)
		r.out.WriteString("<" + tag + ">" + inline + "</" + tag + ">\n")
		return
	}
	r.out.WriteString("<p>" + inline + "</p>\n")
}

func (n *xmlNode) childOrNil(name string) *xmlNode {
	if n == nil {
		return nil
	}
	return n.child(name)
}

func (r *docxRenderer) closeList() {
	if r.listTag != "" {
		r.out.WriteString("</" + r.listTag + ">\n")
		r.listTag = ""
	}
}

func (r *docxRenderer) headingLevel(props *xmlNode) int {
	styleID := props.childOrNil("pStyle").attr("val")
	if styleID == "" {
		return 0
	}
	name := r.styles[styleID]
	if name == "" {
		name = strings.ToLower(styleID)
	}
	if name == "title" {
		return 1
	}
	name = strings.ReplaceAll(name, " ", "")
	if strings.HasPrefix(name, "heading") {
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "heading")); err == nil && n >= 1 && n <= 6 {
			return n
		}
	}
	return 0
}

func (r *docxRenderer) renderInline(nodes []*xmlNode) string {
	var b strings.Builder
	for _, n := range nodes {
		switch n.name {
		case "r":
			b.WriteString(r.renderRun(n))
		case "hyperlink":
			inner := r.renderInline(n.children)
			if target := r.rels[n.attr("id")]; target != "" {
				b.WriteString(`<a href="` + html.EscapeString(target) + `">` + inner + "</a>")
			} else {
				b.WriteString(inner)
			}
		case "ins", "smartTag", "fldSimple":
			b.WriteString(r.renderInline(n.children))
		}
	}
	return b.String()
}

func (r *docxRenderer) renderRun(run *xmlNode) string {
	var b strings.Builder
	for _, c := range run.children {
		switch c.name {
		case "t":
			b.WriteString(html.EscapeString(c.text))
		case "tab":
			b.WriteString(" ")
		case "br", "cr":
			b.WriteString("<br>")
		case "drawing":
			b.WriteString(r.renderImage(c.find("blip").attr("embed")))
		case "pict":
			b.WriteString(r.renderImage(c.find("imagedata").attr("id")))
		}
	}

	text := b.String()
	if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "<img") {
		return text
	}
	props := run.child("rPr")
	if isOn(props.childOrNil("i")) {
		text = "<em>" + text + "</em>"
	}
	if isOn(props.childOrNil("b")) {
		text = "<strong>" + text + "</strong>"
	}
	return text
}

func isOn(toggle *xmlNode) bool {
	if toggle == nil {
		return false
	}
	switch toggle.attr("val") {
	case "0", "false", "off":
		return false
	}
	return true
}

func (r *docxRenderer) renderImage(relID string) string {
	if relID == "" {
		return ""
	}
	if url, seen := r.images[relID]; seen {
		return imgTag(url)
	}

	url := r.uploadImage(relID)
	r.images[relID] = url
	return imgTag(url)
}

func imgTag(url string) string {
	if url == "" {
		return ""
	}
	return `<img src="` + html.EscapeString(url) + `" alt="">`
}

func (r *docxRenderer) uploadImage(relID string) string {
	target := r.rels[relID]
	if target == "" || r.uploader == nil {
		return ""
	}

	name := path.Clean(path.Join("word", target))
	data, err := readZipFile(r.files, name)
	if err != nil {
		r.logger.Warn("Skipping unreadable embedded image", zap.String("target", target), zap.Error(err))
		return ""
	}

	ext := strings.ToLower(path.Ext(name))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	sum := sha256.Sum256(data)
	objectName := "images/" + hex.EncodeToString(sum[:16]) + ext

	url, err := r.uploader.UploadImage(r.ctx, objectName, contentType, data)
	if err != nil {
		r.logger.Warn("Skipping embedded image after upload failure",
			zap.String("object", objectName),
			zap.Error(err),
		)
		return ""
	}
	return url
}

func (r *docxRenderer) renderTable(tbl *xmlNode) {
	r.out.WriteString("<table>")
	first := true
	for _, tr := range tbl.children {
		if tr.name != "tr" {
			continue
		}
		cellTag := "td"
		if first {
			cellTag = "th"
		}
		r.out.WriteString("<tr>")
		for _, tc := range tr.children {
			if tc.name != "tc" {
				continue
			}
			var parts []string
			for _, p := range tc.children {
				if p.name == "p" {
					if s := r.renderInline(p.children); strings.TrimSpace(stripTags(s)) != "" {
						parts = append(parts, s)
					}
				}
			}
			r.out.WriteString("<" + cellTag + ">" + strings.Join(parts, "<br>") + "</" + cellTag + ">")
		}
		r.out.WriteString("</tr>")
		first = false
	}
	r.out.WriteString("</table>\n")
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, c := range s {
		switch {
		case c == '<':
			inTag = true
		case c == '>':
			inTag = false
		case !inTag:
			b.WriteRune(c)
		}
	}
	return b.String()
}
