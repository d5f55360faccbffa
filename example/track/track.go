package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KoKoLates/flowers-tracker/reid"
	"github.com/KoKoLates/flowers-tracker/render"
	"github.com/KoKoLates/flowers-tracker/tracker"
	"gocv.io/x/gocv"
)

var (
	// FPS is the number of FPS to simulate
	FPS         = int64(30)
	FPSinterval = time.Duration(float64(time.Second) / float64(FPS))
)

// ResultFrame is a struct to wrap the gocv byte buffer and error result
type ResultFrame struct {
	Buf *gocv.NativeByteBuffer
	Err error
}

// Demo defines the struct for running the tracking demo.  Detections and
// appearance embeddings are precomputed and loaded from file, so the demo
// exercises the association and track lifecycle only.
type Demo struct {
	// vidBuffer buffers the video frames into memory
	vidBuffer []gocv.Mat
	// detections holds the precomputed detections keyed by frame number
	detections map[int][]tracker.Detection
	// track is the object tracker
	track *tracker.Tracker
	// trail records the tracking history for rendering trail lines
	trail *tracker.Trail
	// labels are the object class names
	labels []string
	// cfg holds the tracker parameters so the tracker can be rebuilt when
	// the video loops
	cfg TrackerConfig
}

// TrackerConfig holds the tracker parameters provided on the command line
type TrackerConfig struct {
	MaxDistance    float32
	MaxIOUDistance float32
	MaxAge         int
	NInit          int
	MetricBudget   int
}

// NewDemo returns an instance of Demo, a streaming HTTP server showing
// video with object tracking
func NewDemo(vidFile, detFile, embFile string, embDim int,
	labels []string, cfg TrackerConfig) (*Demo, error) {

	d := &Demo{
		labels: labels,
		cfg:    cfg,
	}

	err := d.bufferVideo(vidFile)

	if err != nil {
		return nil, fmt.Errorf("Error buffering video: %w", err)
	}

	d.detections, err = loadDetections(detFile, embFile, embDim)

	if err != nil {
		return nil, fmt.Errorf("Error loading detections: %w", err)
	}

	d.trail = tracker.NewTrail(90)
	d.resetTracker()

	log.Printf("Buffered %d video frames, detections for %d frames",
		len(d.vidBuffer), len(d.detections))

	return d, nil
}

// bufferVideo reads in the video frames and saves them to a buffer
func (d *Demo) bufferVideo(vidFile string) error {

	// open handle to read frames of video file
	video, err := gocv.VideoCaptureFile(vidFile)

	if err != nil {
		return err
	}

	defer video.Close()

	d.vidBuffer = make([]gocv.Mat, 0)

	for {
		img := gocv.NewMat()

		// read the next frame from the video
		if ok := video.Read(&img); !ok {
			// reached last video frame
			break
		}

		// Check if the frame is empty
		if img.Empty() {
			continue
		}

		// push frame onto buffer
		d.vidBuffer = append(d.vidBuffer, img)
	}

	return nil
}

// loadDetections reads a detection file with comma delimited rows of
// "frame,x,y,width,height,score,class" plus a sidecar embedding file of
// little endian float16 values, embDim per detection row in file order
func loadDetections(detFile, embFile string,
	embDim int) (map[int][]tracker.Detection, error) {

	embs, err := loadEmbeddings(embFile, embDim)

	if err != nil {
		return nil, err
	}

	file, err := os.Open(detFile)

	if err != nil {
		return nil, err
	}

	defer file.Close()

	dets := make(map[int][]tracker.Detection)
	row := 0

	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")

		if len(fields) < 7 {
			return nil, fmt.Errorf("detection row %d has %d fields, want 7",
				row, len(fields))
		}

		vals := make([]float64, 7)

		for i := 0; i < 7; i++ {
			vals[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)

			if err != nil {
				return nil, fmt.Errorf("detection row %d: %w", row, err)
			}
		}

		if row >= len(embs) {
			return nil, fmt.Errorf("embedding file has %d vectors, "+
				"fewer than detection rows", len(embs))
		}

		frame := int(vals[0])

		rect := tracker.NewRect(float32(vals[1]), float32(vals[2]),
			float32(vals[3]), float32(vals[4]))

		dets[frame] = append(dets[frame], tracker.NewDetection(
			rect, int(vals[6]), float32(vals[5]), embs[row]))

		row++
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return dets, nil
}

// loadEmbeddings reads the binary sidecar file of little endian float16
// appearance embeddings and converts them to float32 vectors
func loadEmbeddings(embFile string, embDim int) ([][]float32, error) {

	data, err := os.ReadFile(embFile)

	if err != nil {
		return nil, err
	}

	if len(data)%(embDim*2) != 0 {
		return nil, fmt.Errorf("embedding file size %d is not a multiple "+
			"of vector size %d", len(data), embDim*2)
	}

	count := len(data) / (embDim * 2)
	embs := make([][]float32, count)

	for i := 0; i < count; i++ {
		bits := make([]uint16, embDim)

		for j := 0; j < embDim; j++ {
			off := (i*embDim + j) * 2
			bits[j] = binary.LittleEndian.Uint16(data[off : off+2])
		}

		embs[i] = reid.Float16ToVec(bits)
	}

	return embs, nil
}

// Stream is the HTTP handler function used to stream video frames to browser
func (d *Demo) Stream(w http.ResponseWriter, r *http.Request) {

	log.Printf("New client connection established\n")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	// pointer to position in video buffer
	frameNum := -1

	// used for calculating FPS
	frameCount := 0
	startTime := time.Now()
	fps := float64(0)

	ticker := time.NewTicker(FPSinterval)
	defer ticker.Stop()

	// chan to receive processed frames
	recvFrame := make(chan ResultFrame, 30)

loop:
	for {
		select {
		case <-r.Context().Done():
			log.Printf("Client disconnected\n")
			break loop

		// simulate reading 30FPS web camera
		case <-ticker.C:

			// increment pointer to next image in the video buffer
			frameNum++
			if frameNum > len(d.vidBuffer)-1 {
				// loop the video, the tracker state is reset so track
				// identities do not leak across playthroughs
				frameNum = 0
				d.resetTracker()
			}

			buf, err := d.ProcessFrame(d.vidBuffer[frameNum], fps, frameNum)
			recvFrame <- ResultFrame{Buf: buf, Err: err}

		case buf := <-recvFrame:

			if buf.Err != nil {
				log.Printf("Error occured during ProcessFrame: %v", buf.Err)

			} else {
				// Write the image to the response writer
				w.Write([]byte("--frame\r\n"))
				w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
				w.Write(buf.Buf.GetBytes())
				w.Write([]byte("\r\n"))

				// Flush the buffer
				flusher, ok := w.(http.Flusher)
				if ok {
					flusher.Flush()
				}

				buf.Buf.Close()
			}

			// calculate FPS
			frameCount++
			elapsed := time.Since(startTime).Seconds()

			if elapsed >= 1.0 {
				fps = float64(frameCount) / elapsed
				frameCount = 0
				startTime = time.Now()
			}
		}
	}
}

// resetTracker replaces the tracker and trail state when the video loops
func (d *Demo) resetTracker() {
	metric := tracker.NewNearestNeighborMetric(tracker.Cosine,
		d.cfg.MaxDistance, d.cfg.MetricBudget)
	d.track = tracker.NewTracker(metric, d.cfg.MaxIOUDistance,
		d.cfg.MaxAge, d.cfg.NInit)
	d.trail.Reset()
}

// ProcessFrame advances the tracker with the detections of the given frame,
// annotates the image with the confirmed tracks and returns the result
// encoded as a JPG file
func (d *Demo) ProcessFrame(img gocv.Mat, fps float64,
	frameNum int) (*gocv.NativeByteBuffer, error) {

	start := time.Now()

	resImg := gocv.NewMat()
	defer resImg.Close()

	d.track.Predict()

	err := d.track.Update(d.detections[frameNum])

	if err != nil {
		return nil, fmt.Errorf("tracker update failed: %w", err)
	}

	// annotate the confirmed tracks that matched a detection this frame
	active := make([]*tracker.Track, 0)

	for _, trk := range d.track.Tracks() {
		if !trk.IsConfirmed() || trk.TimeSinceUpdate() > 0 {
			continue
		}

		active = append(active, trk)
		d.trail.Add(trk)
	}

	// copy the source image and annotate the copy
	img.CopyTo(&resImg)

	render.TrackBoxes(&resImg, active, d.labels, render.DefaultFont(), 2)
	render.Trail(&resImg, active, d.trail, render.DefaultTrailStyle())

	gocv.PutText(&resImg,
		fmt.Sprintf("Frame: %d, FPS: %.2f, Tracks: %d, Time: %.2fms",
			frameNum, fps, len(active),
			float32(time.Since(start))/float32(time.Millisecond)),
		image.Pt(4, 14), gocv.FontHersheyDuplex, 0.5, render.Yellow, 1)

	// Encode the image to JPEG format
	return gocv.IMEncode(".jpg", resImg)
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	vidFile := flag.String("v", "../data/flowers.mp4", "Video file to run tracking on")
	detFile := flag.String("d", "../data/flowers-dets.txt", "Detection file with rows of frame,x,y,width,height,score,class")
	embFile := flag.String("e", "../data/flowers-embs.f16", "Binary file of little endian float16 appearance embeddings, one vector per detection row")
	embDim := flag.Int("n", 128, "Dimension of the appearance embedding vectors")
	labelList := flag.String("l", "flower", "Comma delimited list of object class names")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")
	maxDist := flag.Float64("maxdist", 0.2, "Appearance matching threshold (cosine distance)")
	maxIOU := flag.Float64("maxiou", 0.7, "Maximum IOU distance for the fallback matching stage")
	maxAge := flag.Int("maxage", 30, "Number of missed frames before a confirmed track is deleted")
	nInit := flag.Int("ninit", 3, "Number of consecutive hits before a track is confirmed")
	budget := flag.Int("budget", 100, "Number of appearance samples kept per track")

	flag.Parse()

	labels := strings.Split(*labelList, ",")

	cfg := TrackerConfig{
		MaxDistance:    float32(*maxDist),
		MaxIOUDistance: float32(*maxIOU),
		MaxAge:         *maxAge,
		NInit:          *nInit,
		MetricBudget:   *budget,
	}

	demo, err := NewDemo(*vidFile, *detFile, *embFile, *embDim, labels, cfg)

	if err != nil {
		log.Fatalf("Error creating demo: %v", err)
	}

	http.HandleFunc("/stream", demo.Stream)

	// start http server
	log.Println(fmt.Sprintf("Open browser and view video at http://%s/stream",
		*httpAddr))
	log.Fatal(http.ListenAndServe(*httpAddr, nil))
}
