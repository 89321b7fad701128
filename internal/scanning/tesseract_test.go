package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// stubRunner records the command and returns canned output
type stubRunner struct {
	name     string
	args     []string
	inputPNG []byte
	stdout   string
	stderr   string
	err      error
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	if len(args) > 0 {
		s.inputPNG, _ = os.ReadFile(args[0])
	}
	return []byte(s.stdout), []byte(s.stderr), s.err
}

func testPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Tesseract", func() {
	var (
		runner    *stubRunner
		tesseract *Tesseract
	)

	BeforeEach(func() {
		runner = &stubRunner{stdout: "  LECHE 19,50\nTOTAL 39,00\n"}
		tesseract = NewTesseractWithRunner(TesseractConfig{}, runner)
	})

	It("runs tesseract on the stored file", func() {
		text, err := tesseract.ExtractText(context.Background(), Image{
			Data:        []byte("jpeg bytes"),
			ContentType: "image/jpeg",
			Path:        "/uploads/proc-1_ticket.jpg",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("LECHE 19,50\nTOTAL 39,00"))
		Expect(runner.name).To(Equal("tesseract"))
		Expect(runner.args).To(Equal([]string{"/uploads/proc-1_ticket.jpg", "stdout", "-l", "spa"}))
	})

	It("writes a temporary PNG when the image is not on disk", func() {
		data := testPNG()
		_, err := tesseract.ExtractText(context.Background(), Image{Data: data, ContentType: "image/png"})
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.inputPNG).To(Equal(data))
		Expect(runner.args[0]).NotTo(BeAnExistingFile())
	})

	It("converts formats tesseract can not read", func() {
		_, err := tesseract.ExtractText(context.Background(), Image{
			Data:        []byte("GIF89a not really"),
			ContentType: "image/gif",
			Path:        "/uploads/proc-1_ticket.gif",
		})
		Expect(err).To(HaveOccurred())
		Expect(runner.name).To(BeEmpty())
	})

	It("passes language and tessdata settings", func() {
		tesseract = NewTesseractWithRunner(TesseractConfig{Binary: "/opt/tesseract", Language: "spa+eng", TessdataDir: "/opt/tessdata"}, runner)
		_, err := tesseract.ExtractText(context.Background(), Image{ContentType: "image/jpeg", Path: "/uploads/a.jpg"})
		Expect(err).NotTo(HaveOccurred())
		Expect(runner.name).To(Equal("/opt/tesseract"))
		Expect(runner.args).To(Equal([]string{"/uploads/a.jpg", "stdout", "-l", "spa+eng", "--tessdata-dir", "/opt/tessdata"}))
	})

	It("reports failures with stderr", func() {
		runner.err = errors.New("exit status 1")
		runner.stderr = "Failed loading language 'spa'\n"

		_, err := tesseract.ExtractText(context.Background(), Image{ContentType: "image/jpeg", Path: "/uploads/a.jpg"})
		Expect(err).To(MatchError(runner.err))
		Expect(err).To(MatchError(ContainSubstring("Failed loading language 'spa'")))
	})
})
