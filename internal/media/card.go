package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	_ "image/jpeg"

	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// Card layout, in pixels of the 1414x2000 portrait canvas.
const (
	CardWidth  = 1414
	CardHeight = 2000
	photoSize  = 300
	qrSize     = 650
	textScale  = 4
)

var (
	photoAt = image.Pt(320, 910)
	qrAt    = image.Pt((CardWidth-qrSize)/2, 1350)
	textX   = 650

	cardBackground = color.RGBA{0xff, 0xff, 0xff, 0xff}
	cardHeader     = color.RGBA{0x1f, 0x3a, 0x5f, 0xff}
	placeholder    = color.RGBA{0x80, 0x80, 0x80, 0xff}
)

// RenderQR encodes payload as a square PNG of the given size.
func RenderQR(payload string, size int) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("qr payload is empty")
	}
	if size <= 0 {
		size = qrSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// CardInput is what gets printed on a visitor card.
type CardInput struct {
	Name        string
	VisitorID   string
	Email       string
	Institution string
	Photo       []byte // jpg, png or webp; a grey square is drawn if it cannot be decoded
	QR          []byte // png
}

// ComposeCard draws the visitor card and returns it as PNG.
func ComposeCard(in CardInput) ([]byte, error) {
	qr, _, err := image.Decode(bytes.NewReader(in.QR))
	if err != nil {
		return nil, fmt.Errorf("decode qr image: %w", err)
	}

	card := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	draw.Draw(card, card.Bounds(), image.NewUniform(cardBackground), image.Point{}, draw.Src)
	draw.Draw(card, image.Rect(0, 0, CardWidth, 600), image.NewUniform(cardHeader), image.Point{}, draw.Src)

	photoRect := image.Rectangle{Min: photoAt, Max: photoAt.Add(image.Pt(photoSize, photoSize))}
	if photo, _, err := image.Decode(bytes.NewReader(in.Photo)); err == nil {
		draw.CatmullRom.Scale(card, photoRect, photo, coverCrop(photo.Bounds(), photoSize, photoSize), draw.Src, nil)
	} else {
		draw.Draw(card, photoRect, image.NewUniform(placeholder), image.Point{}, draw.Src)
	}

	qrRect := image.Rectangle{Min: qrAt, Max: qrAt.Add(image.Pt(qrSize, qrSize))}
	draw.NearestNeighbor.Scale(card, qrRect, qr, qr.Bounds(), draw.Over, nil)

	for i, line := range []string{in.Name, "ID: " + in.VisitorID, in.Email, in.Institution} {
		if line == "" {
			continue
		}
		drawLabel(card, line, image.Pt(textX, 970+i*70))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, card); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// coverCrop returns the centred part of src with the aspect ratio of w:h.
func coverCrop(src image.Rectangle, w, h int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw*h > sh*w {
		cw := sh * w / h
		x := src.Min.X + (sw-cw)/2
		return image.Rect(x, src.Min.Y, x+cw, src.Max.Y)
	}
	ch := sw * h / w
	y := src.Min.Y + (sh-ch)/2
	return image.Rect(src.Min.X, y, src.Max.X, y+ch)
}

// drawLabel renders text with the fixed 7x13 face and scales it up onto dst
// with its top-left corner at at.
func drawLabel(dst draw.Image, text string, at image.Point) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	if w == 0 {
		return
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	target := image.Rect(at.X, at.Y, at.X+w*textScale, at.Y+h*textScale)
	draw.NearestNeighbor.Scale(dst, target, small, small.Bounds(), draw.Over, nil)
}
