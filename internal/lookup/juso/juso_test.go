package juso

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/lookup"
)

type recorder struct {
	mu   sync.Mutex
	reqs []*http.Request
}

func (r *recorder) last() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[len(r.reqs)-1]
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.reqs = append(rec.reqs, r.Clone(context.Background()))
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json;charset=UTF-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

const okBody = `{"results":{"common":{"errorMessage":"정상","countPerPage":"7","totalCount":"1","errorCode":"0","currentPage":"1"},
"juso":[{"roadAddr":"서울특별시 종로구 세종대로 209 (세종로)","jibunAddr":"서울특별시 종로구 세종로 77-6","zipNo":"03171",
"admCd":"1111011900","rnMgtSn":"111103100014","udrtYn":"0","buldMnnm":209,"buldSlno":0,
"siNm":"서울특별시","sggNm":"종로구","emdNm":"세종로","rn":"세종대로"}]}}`

func TestForwardSearch_EnglishUsesEngEndpointAndKey(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, okBody)
	c, err := New(Config{BaseURL: srv.URL, KorKey: "kor-key", EngKey: "eng-key"}, srv.Client())
	require.NoError(t, err)

	res, err := c.ForwardSearch(context.Background(), lookup.SearchRequest{
		Keyword: "209 Sejong-daero", Page: 1, PageSize: 7, Language: domain.LanguageEnglish,
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 1, res.TotalCount)
	require.Len(t, res.Hits, 1)

	h := res.Hits[0]
	assert.Equal(t, "209", h.BuldMnnm, "数字编码的字段应转为字符串")
	assert.Equal(t, "0", h.BuldSlno)
	assert.True(t, h.Key().Usable())

	r := rec.last()
	assert.Equal(t, pathEnglish, r.URL.Path)
	q := r.URL.Query()
	assert.Equal(t, "eng-key", q.Get("confmKey"))
	assert.Equal(t, "7", q.Get("countPerPage"))
	assert.Equal(t, "1", q.Get("currentPage"))
	assert.Equal(t, "209 Sejong-daero", q.Get("keyword"))
	assert.Equal(t, "json", q.Get("resultType"))
}

func TestForwardSearch_KoreanDefaults(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, okBody)
	c, err := New(Config{BaseURL: srv.URL + "/", KorKey: "kor-key", EngKey: "eng-key"}, srv.Client())
	require.NoError(t, err)

	_, err = c.ForwardSearch(context.Background(), lookup.SearchRequest{Keyword: "세종대로 209", Language: domain.LanguageKorean})
	require.NoError(t, err)

	r := rec.last()
	assert.Equal(t, pathKorean, r.URL.Path)
	assert.Equal(t, "kor-key", r.URL.Query().Get("confmKey"))
	assert.Equal(t, "1", r.URL.Query().Get("currentPage"))
	assert.Equal(t, "10", r.URL.Query().Get("countPerPage"))
}

func TestDetailLookup_EncodesKey(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, okBody)
	c, err := New(Config{BaseURL: srv.URL, KorKey: "kor-key", EngKey: "eng-key"}, srv.Client())
	require.NoError(t, err)

	key := domain.AdministrativeKey{AdmCd: "1111011900", RnMgtSn: "111103100014", UdrtYn: "0", BuldMnnm: "209", BuldSlno: "0"}
	_, err = c.DetailLookup(context.Background(), key)
	require.NoError(t, err)

	r := rec.last()
	assert.Equal(t, pathDetail, r.URL.Path)
	want := url.Values{
		"confmKey": {"kor-key"}, "admCd": {key.AdmCd}, "rnMgtSn": {key.RnMgtSn},
		"udrtYn": {"0"}, "buldMnnm": {"209"}, "buldSlno": {"0"}, "resultType": {"json"},
	}
	assert.Equal(t, want, r.URL.Query())
}

func TestCall_APIErrorCode(t *testing.T) {
	body := `{"results":{"common":{"errorMessage":"승인되지 않은 KEY 입니다.","totalCount":"0","errorCode":"E0001"},"juso":null}}`
	srv, _ := newServer(t, http.StatusOK, body)
	c, err := New(Config{BaseURL: srv.URL, KorKey: "bad"}, srv.Client())
	require.NoError(t, err)

	res, err := c.ForwardSearch(context.Background(), lookup.SearchRequest{Keyword: "x", Language: domain.LanguageKorean})
	require.Error(t, err)
	assert.Equal(t, lookup.KindAPI, lookup.KindOf(err))
	assert.Equal(t, domain.ErrCodeAPI, lookup.ErrorCode(err))
	assert.Equal(t, "E0001", res.StatusCode)

	var le *lookup.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "E0001", le.Code)
	assert.Contains(t, le.Message, "승인되지")
}

func TestCall_Non2xxIsTransport(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadGateway, "upstream down")
	c, err := New(Config{BaseURL: srv.URL, KorKey: "secret"}, srv.Client())
	require.NoError(t, err)

	_, err = c.ForwardSearch(context.Background(), lookup.SearchRequest{Keyword: "x"})
	require.Error(t, err)
	assert.Equal(t, lookup.KindTransport, lookup.KindOf(err))

	var se *lookup.HTTPStatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.NotContains(t, se.URL, "secret")
}

func TestCall_InvalidJSONIsTransport(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, "<html>maintenance</html>")
	c, err := New(Config{BaseURL: srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = c.ForwardSearch(context.Background(), lookup.SearchRequest{Keyword: "x"})
	require.Error(t, err)
	assert.Equal(t, lookup.KindTransport, lookup.KindOf(err))
}

func TestCall_TimeoutIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	hc := srv.Client()
	hc.Timeout = 50 * time.Millisecond
	c, err := New(Config{BaseURL: srv.URL}, hc)
	require.NoError(t, err)

	_, err = c.ForwardSearch(context.Background(), lookup.SearchRequest{Keyword: "x"})
	require.Error(t, err)
	assert.Equal(t, lookup.KindTimeout, lookup.KindOf(err))
	assert.Equal(t, domain.ErrCodeTimeout, lookup.ErrorCode(err))
}

func TestDecode_MissingCommonIsError(t *testing.T) {
	_, err := decode([]byte(`{"results":{}}`))
	require.Error(t, err)
	_, err = decode([]byte("   "))
	require.Error(t, err)
}

func TestFlexString(t *testing.T) {
	res, err := decode([]byte(`{"results":{"common":{"errorCode":0,"errorMessage":"정상","totalCount":2},
"juso":[{"zipNo":3171,"buldSlno":null},{"zipNo":" 03171 ","buldSlno":"12"}]}}`))
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.TotalCount)
	assert.Equal(t, "03171", domain.ZipStr(res.Hits[0].ZipNo))
	assert.Equal(t, "", res.Hits[0].BuldSlno)
	assert.Equal(t, "03171", res.Hits[1].ZipNo)
	assert.Equal(t, 12, res.Hits[1].BuildingSub())
}

func TestRedactKey(t *testing.T) {
	got := redactKey("https://x/addrLinkApi.do?confmKey=abc&keyword=a")
	assert.False(t, strings.Contains(got, "abc"))
	assert.Contains(t, got, "keyword=a")
}
