// Package render draws tracker output onto video frames using GoCV.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/KoKoLates/flowers-tracker/tracker"
	"gocv.io/x/gocv"
)

// boxLabel records the label rendering details for a bounding box
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// TrackBoxes renders the bounding boxes of the given tracks with a
// "id class" label.  Box color is stable per track ID.  classNames may be
// nil, in which case the numeric class is rendered.
func TrackBoxes(img *gocv.Mat, tracks []*tracker.Track, classNames []string,
	font Font, lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(tracks))

	for _, track := range tracks {

		useClr := TrackColor(track.TrackID())

		box := track.GetRect()
		rect := image.Rect(int(box.TLX()), int(box.TLY()),
			int(box.BRX()), int(box.BRY()))

		gocv.Rectangle(img, rect, useClr, lineThickness)

		// create text for label
		var className string

		if classNames != nil && track.Class() >= 0 && track.Class() < len(classNames) {
			className = classNames[track.Class()]
		} else {
			className = fmt.Sprintf("%d", track.Class())
		}

		text := fmt.Sprintf("#%d %s", track.TrackID(), className)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		// Calculate the alignment of the text label
		var centerX int

		switch font.Alignment {
		case Center:
			centerX = (rect.Min.X + rect.Max.X) / 2

		case Right:
			centerX = rect.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

		case Left:
			fallthrough
		default:
			centerX = rect.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
		}

		// Adjust the label position so the text is centered horizontally
		labelPosition := image.Pt(centerX-textSize.X/2, rect.Min.Y-font.BottomPad)

		// create box for placing text on
		bRect := image.Rect(centerX-textSize.X/2-font.LeftPad,
			rect.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, rect.Min.Y)

		boxLabels = append(boxLabels, boxLabel{
			rect:    bRect,
			clr:     useClr,
			text:    text,
			textPos: labelPosition,
		})
	}

	// draw all precalculated box labels so they are the top most layer on
	// the image
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}
