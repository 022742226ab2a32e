package binder

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/watchlog/watchlog/pkg/errcodes"
)

type params struct {
	Hello string `json:"hello" mod:"trim" validate:"max=9"`
	Omit  string `json:"-"`
}

var (
	goodJSON             = `{"hello":" world "}`
	unknownFieldsErrJSON = `{"hello":"world","foo":"bar"}`
	typeErrJSON          = `{"hello":123}`
	validationErrJSON    = `{"hello":"0123456789"}`
)

func TestNew(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)
	assert.NotNil(t, b)

	t.Run("only allows application/json and application/x-www-form-urlencoded", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationXML)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "Unsupported Media Type")
	})

	t.Run("disallows unknown fields", func(tt *testing.T) {
		c := newContext(unknownFieldsErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `Unknown Parameter "foo"`)
	})

	t.Run("returns a good message for type errors", func(tt *testing.T) {
		c := newContext(typeErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), `"hello" should be of type string`)
	})

	t.Run("use mod tag to modify params", func(tt *testing.T) {
		c := newContext(goodJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		require.NoError(tt, err)
		assert.Equal(tt, "world", p.Hello)
	})

	t.Run("use validate tag to validate params", func(tt *testing.T) {
		c := newContext(validationErrJSON, echo.MIMEApplicationJSON)
		p := params{}
		err = b.Bind(&p, c)
		assert.Contains(tt, err.Error(), "length must be less than or equal to 9 characters")
	})
}

func newContext(payload, mime string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(echo.POST, "/", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, mime)
	rr := httptest.NewRecorder()
	return e.NewContext(req, rr)
}

type formParams struct {
	Title     string                           `form:"title" json:"title" mod:"trim" validate:"required"`
	Rating    int                              `form:"rating" json:"rating" validate:"min=1,max=5"`
	FormFiles map[string]*multipart.FileHeader `form:"-" json:"-"`
}

func TestBind_Multipart(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(t, w.WriteField("title", "  Inception "))
	require.NoError(t, w.WriteField("rating", "4"))
	part, err := w.CreateFormFile("image", "poster.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a png"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	c := newContext(body.String(), w.FormDataContentType())
	p := formParams{}
	err = b.Bind(&p, c)
	require.NoError(t, err)

	assert.Equal(t, "Inception", p.Title)
	assert.Equal(t, 4, p.Rating)
	require.Contains(t, p.FormFiles, "image")
	assert.Equal(t, "poster.png", p.FormFiles["image"].Filename)
}

func TestBind_FormTypeError(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	c := newContext("title=Dune&rating=lots", echo.MIMEApplicationForm)
	p := formParams{}
	err = b.Bind(&p, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rating" should be of type int`)
}

func TestBind_EmptyBody(t *testing.T) {
	t.Parallel()
	b, err := New()
	require.NoError(t, err)

	c := newContext("", echo.MIMEApplicationJSON)
	p := params{}
	err = b.Bind(&p, c)
	assert.ErrorIs(t, err, errcodes.EmptyRequestBody())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	type dated struct {
		Date string `json:"date" validate:"date"`
	}

	err := Validate(&formParams{Title: "Dune", Rating: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"rating" must be greater than or equal to 1`)

	err = Validate(&formParams{Rating: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"title" is required`)

	assert.NoError(t, Validate(&formParams{Title: "Dune", Rating: 5}))
	assert.NoError(t, Validate(&dated{Date: "2024-02-29"}))
	assert.NoError(t, Validate(&dated{}))

	err = Validate(&dated{Date: "2023-02-30"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
	err = Validate(&dated{Date: "02/03/2024"})
	require.Error(t, err)
}
