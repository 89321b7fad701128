package scanning

import (
	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Gemini", func() {
	It("requires an API key", func() {
		_, err := NewGemini("", "", nil)
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})

	Describe("responseText", func() {
		It("joins the text parts of the first candidate", func() {
			text, err := responseText(&genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{
					{Content: &genai.Content{Parts: []genai.Part{genai.Text("LECHE "), genai.Blob{MIMEType: "image/png"}, genai.Text("19.50")}}},
					{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("LECHE 19.50"))
		})

		DescribeTable("fails on empty responses",
			func(resp *genai.GenerateContentResponse) {
				_, err := responseText(resp)
				Expect(err).To(MatchError("no response from gemini"))
			},
			Entry("nil", nil),
			Entry("no candidates", &genai.GenerateContentResponse{}),
			Entry("no content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}),
			Entry("no parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}),
		)
	})
})
