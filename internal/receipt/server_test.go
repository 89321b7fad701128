package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"golang.org/x/oauth2"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		ocr         *mockOCR
		structurer  *mockStructurer
		exporter    *mockExporter
		auth        *mockAuthenticator
		server      *Server
		ghttpServer *ghttp.Server
		client      *http.Client
	)

	BeforeEach(func() {
		db = newMockDB()
		ocr = &mockOCR{text: "LECHE 2 19.50"}
		structurer = &mockStructurer{payload: map[string]any{
			"fecha":         "27/08/2025",
			"productos":     []any{map[string]any{"nombre": "Leche", "cantidad": 2.0, "precio_unitario": 19.5}},
			"total_general": 39.0,
		}}
		exporter = &mockExporter{export: &Export{SpreadsheetID: "sheet-1", UpdatedCells: 8}}
		auth = &mockAuthenticator{email: "ana@example.com", token: &oauth2.Token{AccessToken: "access"}}

		timeSrc := &mockTimeSource{now: time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)}
		service := NewServiceWithDeps(db, newMockStorage(), ocr, structurer, exporter, &mockIDGenerator{ids: []string{"proc-1"}}, timeSrc)
		sessions := NewSessionsWithDeps(db, auth, &mockIDGenerator{ids: []string{"sess-new", "state-1", "sess-signed-in"}}, timeSrc)
		server = NewServerWithMux(service, sessions, http.NewServeMux())

		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)

		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	signIn := func(req *http.Request) {
		db.sessions["sess-1"] = &Session{ID: "sess-1", Email: "ana@example.com", Token: &oauth2.Token{AccessToken: "access"}}
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	}

	uploadRequest := func(field, filename string, data []byte) *http.Request {
		var b bytes.Buffer
		writer := multipart.NewWriter(&b)
		part, err := writer.CreateFormFile(field, filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/process", &b)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return req
	}

	decode := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		var body map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body
	}

	Describe("pages", func() {
		It("redirects / to the login page", func() {
			resp, err := client.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("/login"))
		})

		It("serves the login page", func() {
			resp, err := client.Get(ghttpServer.URL() + "/login")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/html; charset=utf-8"))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`href="/auth"`))
		})

		It("redirects anonymous visitors away from the upload page", func() {
			resp, err := client.Get(ghttpServer.URL() + "/upload")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("/login"))
		})

		It("serves the upload page to signed in users", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/upload", nil)
			Expect(err).NotTo(HaveOccurred())
			signIn(req)

			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring(`id="upload-form"`))
		})

		It("serves the stylesheet", func() {
			resp, err := client.Get(ghttpServer.URL() + "/static/app.css")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/css; charset=utf-8"))
		})

		It("serves the script", func() {
			resp, err := client.Get(ghttpServer.URL() + "/static/app.js")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("/api/process"))
		})
	})

	Describe("OAuth flow", func() {
		It("signs a user in from /auth through the callback", func() {
			ghttpServer.AppendHandlers(server.ServeHTTP)

			resp, err := client.Get(ghttpServer.URL() + "/auth")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("https://accounts.example.com/auth?state=state-1"))

			cookies := resp.Cookies()
			Expect(cookies).To(HaveLen(1))
			Expect(cookies[0].Name).To(Equal(sessionCookieName))
			Expect(cookies[0].Value).To(Equal("sess-new"))
			Expect(cookies[0].HttpOnly).To(BeTrue())
			Expect(cookies[0].SameSite).To(Equal(http.SameSiteLaxMode))

			req, err := http.NewRequest("GET", ghttpServer.URL()+"/oauth2callback?state=state-1&code=code-1", nil)
			Expect(err).NotTo(HaveOccurred())
			req.AddCookie(cookies[0])
			resp, err = client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("/upload"))

			signedIn := resp.Cookies()
			Expect(signedIn).To(HaveLen(1))
			Expect(signedIn[0].Value).To(Equal("sess-signed-in"))
			Expect(db.sessions["sess-signed-in"].Authenticated()).To(BeTrue())
			Expect(db.sessions).NotTo(HaveKey("sess-new"))
			Expect(auth.codes).To(Equal([]string{"code-1"}))
		})

		callback := func(query string, withCookie bool) *http.Response {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/oauth2callback"+query, nil)
			Expect(err).NotTo(HaveOccurred())
			if withCookie {
				db.sessions["pending"] = &Session{ID: "pending", State: "state-1"}
				req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "pending"})
			}
			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			return resp
		}

		It("rejects a callback without a code", func() {
			Expect(callback("?state=state-1", true).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a callback with a provider error", func() {
			Expect(callback("?error=access_denied", true).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a callback without a session", func() {
			Expect(callback("?state=state-1&code=c", false).StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects a forged state", func() {
			Expect(callback("?state=other&code=c", true).StatusCode).To(Equal(http.StatusBadRequest))
			Expect(auth.codes).To(BeEmpty())
		})

		It("reports a failed code exchange as a bad gateway", func() {
			auth.exchangeErr = errors.New("invalid_grant")
			Expect(callback("?state=state-1&code=c", true).StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("logs out", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/logout", nil)
			Expect(err).NotTo(HaveOccurred())
			signIn(req)

			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusSeeOther))
			Expect(resp.Header.Get("Location")).To(Equal("/login"))
			Expect(db.sessions).NotTo(HaveKey("sess-1"))
			Expect(resp.Cookies()[0].MaxAge).To(BeNumerically("<", 0))
		})
	})

	Describe("POST /api/process", func() {
		When("the user is signed in", func() {
			var req *http.Request

			BeforeEach(func() {
				req = uploadRequest("image", "ticket.jpg", []byte("image"))
				signIn(req)
			})

			It("returns the processed receipt", func() {
				resp, err := client.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				body := decode(resp)
				Expect(body["process_id"]).To(Equal("proc-1"))
				Expect(body["spreadsheet_id"]).To(Equal("sheet-1"))
				Expect(body["message"]).To(Equal("data saved to spreadsheet"))
				Expect(body["data"]).To(Equal(map[string]any{
					"fecha": "27/08/2025",
					"productos": []any{
						map[string]any{"nombre": "Leche", "cantidad": 2.0, "precio_unitario": 19.5},
					},
					"total_general": 39.0,
				}))
			})

			It("exports for the signed in user", func() {
				resp, err := client.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(exporter.owner.Email).To(Equal("ana@example.com"))
				Expect(exporter.owner.Token.AccessToken).To(Equal("access"))
			})

			It("passes the upload content type to OCR", func() {
				resp, err := client.Do(req)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(ocr.image.ContentType).To(Equal("image/jpeg"))
				Expect(ocr.image.Data).To(Equal([]byte("image")))
			})

			When("the export fails", func() {
				BeforeEach(func() {
					exporter.err = errors.New("quota exceeded")
				})

				It("still returns the data with a null spreadsheet id", func() {
					resp, err := client.Do(req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(http.StatusOK))

					body := decode(resp)
					Expect(body).To(HaveKeyWithValue("spreadsheet_id", BeNil()))
					Expect(body["message"]).To(ContainSubstring("quota exceeded"))
					Expect(body["data"]).NotTo(BeNil())
				})
			})

			When("the receipt has no date", func() {
				BeforeEach(func() {
					structurer.payload["fecha"] = nil
				})

				It("returns unprocessable entity", func() {
					resp, err := client.Do(req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
					Expect(decode(resp)["error"]).To(Equal(ErrDateMissing.Error()))
					Expect(db.processes["proc-1"].Status).To(Equal(StatusFailed))
				})
			})

			When("OCR fails", func() {
				BeforeEach(func() {
					ocr.err = errors.New("vision unavailable")
				})

				It("returns bad gateway", func() {
					resp, err := client.Do(req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
					Expect(decode(resp)["error"]).To(ContainSubstring("vision unavailable"))
				})
			})

			When("the process can not be recorded", func() {
				BeforeEach(func() {
					db.saveProcessErr = errors.New("db down")
				})

				It("returns internal server error", func() {
					resp, err := client.Do(req)
					Expect(err).NotTo(HaveOccurred())
					Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
					resp.Body.Close()
				})
			})
		})

		It("rejects anonymous uploads", func() {
			resp, err := client.Do(uploadRequest("image", "ticket.jpg", []byte("image")))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(decode(resp)["error"]).To(Equal("user not authenticated"))
		})

		It("rejects sessions that never finished signing in", func() {
			req := uploadRequest("image", "ticket.jpg", []byte("image"))
			db.sessions["pending"] = &Session{ID: "pending", State: "state-1"}
			req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "pending"})

			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("requires the image field", func() {
			req := uploadRequest("file", "ticket.jpg", []byte("image"))
			signIn(req)

			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decode(resp)["error"]).To(Equal("no file uploaded"))
		})

		It("rejects a request that is not multipart", func() {
			req, err := http.NewRequest("POST", ghttpServer.URL()+"/api/process", strings.NewReader("{}"))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			signIn(req)

			resp, err := client.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/status/{id}", func() {
		It("reports the status of a known process", func() {
			db.processes["proc-7"] = &Process{ID: "proc-7", Status: StatusCompleted}

			resp, err := client.Get(ghttpServer.URL() + "/api/status/proc-7")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(Equal(map[string]any{"process_id": "proc-7", "status": "completed"}))
		})

		It("reports unknown processes as not found", func() {
			resp, err := client.Get(ghttpServer.URL() + "/api/status/nope")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decode(resp)).To(Equal(map[string]any{"process_id": "nope", "status": "not found"}))
		})

		It("fails when the database fails", func() {
			db.getProcessErr = errors.New("db down")

			resp, err := client.Get(ghttpServer.URL() + "/api/status/proc-7")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		})
	})

	DescribeTable("detectContentType",
		func(contentType, filename, want string) {
			Expect(detectContentType(contentType, filename)).To(Equal(want))
		},
		Entry("keeps a declared type", "Image/PNG", "x.jpg", "image/png"),
		Entry("guesses jpeg", "", "x.JPG", "image/jpeg"),
		Entry("guesses heic", "application/octet-stream", "x.heic", "image/heic"),
		Entry("guesses pdf", "", "x.pdf", "application/pdf"),
		Entry("falls back to octet-stream", "", "x.bin", "application/octet-stream"),
	)
})
