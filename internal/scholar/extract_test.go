package scholar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/litreview/pkg/types"
)

const resultsPage = `<html><body><div id="gs_res_ccl_mid">
<div class="gs_r gs_or gs_scl"><div class="gs_ri">
  <h3 class="gs_rt"><span class="gs_ctg2">[PDF]</span> <a href="https://arxiv.org/abs/1706.03762">Attention is all
   you need</a></h3>
  <div class="gs_a">A Vaswani, N Shazeer, N Parmar&nbsp;- Advances in neural information processing systems, 2017&nbsp;- proceedings.neurips.cc</div>
  <div class="gs_rs">The dominant sequence transduction models are based on complex recurrent or convolutional neural networks …</div>
  <div class="gs_fl"><a href="#">Save</a> <a href="#">Cite</a> <a href="/scholar?cites=5">Cited by 120345</a></div>
</div></div>
<div class="gs_r gs_or gs_scl"><div class="gs_ri">
  <h3 class="gs_rt"><span class="gs_ct1">[CITATION]</span><span class="gs_ct2">[C]</span> Neural machine translation by jointly learning to align</h3>
  <div class="gs_a">D Bahdanau, K Cho, Y Bengio&nbsp;- arXiv preprint arXiv:1409.0473, 2014</div>
  <div class="gs_fl"><a href="/scholar?cites=9">Cited by 30000</a></div>
</div></div>
</div></body></html>`

const captchaPage = `<html><body><div id="gs_captcha_ccl"><h1>Please show you're not a robot</h1>
<form id="captcha-form"><div class="g-recaptcha"></div></form></div></body></html>`

const emptyPage = `<html><body><div id="gs_res_ccl_mid">
<p>Your search - <b>qwzxv</b> - did not match any articles.</p></div></body></html>`

func TestParseResults(t *testing.T) {
	kind, recs, err := Parse(resultsPage, "https://scholar.google.com/scholar?q=x")
	require.NoError(t, err)
	assert.Equal(t, PageResults, kind)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, "Attention is all you need", r.Title)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", r.URL)
	assert.Equal(t, types.Authors{"A Vaswani", "N Shazeer", "N Parmar"}, r.Authors)
	assert.Equal(t, types.Year(2017), r.Year)
	assert.Equal(t, "Advances in neural information processing systems", r.Journal)
	assert.Equal(t, 120345, r.Cited)
	assert.Contains(t, r.Abstract, "dominant sequence transduction")
	assert.Equal(t, types.StatusPending, r.CompletionStatus)

	c := recs[1]
	assert.Equal(t, "Neural machine translation by jointly learning to align", c.Title)
	assert.Empty(t, c.URL)
	assert.Equal(t, "arXiv preprint arXiv:1409.0473", c.Journal)
	assert.Equal(t, types.Year(2014), c.Year)
	assert.Equal(t, 30000, c.Cited)
}

const unusualTrafficResults = `<html><body><div id="gs_res_ccl_mid">
<div class="gs_r gs_or gs_scl"><div class="gs_ri">
  <h3 class="gs_rt"><a href="https://net.example/1">Detecting unusual traffic in backbone networks</a></h3>
  <div class="gs_a">K Lee - IEEE Transactions on Networking, 2019 - ieee.org</div>
  <div class="gs_rs">We flag unusual traffic and show the detector is not a robot-only heuristic.</div>
</div></div></div></body></html>`

func TestParseResultsMentioningCaptchaWords(t *testing.T) {
	kind, recs, err := Parse(unusualTrafficResults, "https://scholar.google.com/scholar?q=x")
	require.NoError(t, err)
	assert.Equal(t, PageResults, kind)
	require.Len(t, recs, 1)
	assert.Equal(t, "Detecting unusual traffic in backbone networks", recs[0].Title)
}

func TestParseClassifies(t *testing.T) {
	tests := []struct {
		name string
		html string
		want PageKind
	}{
		{"captcha", captchaPage, PageCaptcha},
		{"unusual traffic", `<html><body>Our systems have detected unusual traffic from your network.</body></html>`, PageCaptcha},
		{"chinese captcha", `<html><body>请进行人机身份验证</body></html>`, PageCaptcha},
		{"recaptcha widget", `<html><body><div id="recaptcha"></div></body></html>`, PageCaptcha},
		{"results mentioning unusual traffic", unusualTrafficResults, PageResults},
		{"empty", emptyPage, PageEmpty},
		{"blank", `<html><body></body></html>`, PageLoading},
		{"results", resultsPage, PageResults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _, err := Parse(tt.html, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestParseFallbackSelectors(t *testing.T) {
	html := `<html><body>
<div class="item"><h3><a href="/paper/1">Mirror Paper One</a></h3>
<div class="gs_a">Z Li, W Wang - 计算机学报, 2021 - cjc.ict.ac.cn</div>
<div class="gs_fl"><a>被引用次数：42</a></div></div>
<div class="item"><h3><a href="https://x.example/2">Mirror Paper Two</a></h3></div>
</body></html>`

	kind, recs, err := Parse(html, "https://mirror.example/scholar?q=x")
	require.NoError(t, err)
	assert.Equal(t, PageResults, kind)
	require.Len(t, recs, 2)
	assert.Equal(t, "https://mirror.example/paper/1", recs[0].URL)
	assert.Equal(t, 42, recs[0].Cited)
	assert.Equal(t, "计算机学报", recs[0].Journal)
	assert.Equal(t, types.Authors{"Z Li", "W Wang"}, recs[0].Authors)
	assert.Equal(t, "https://x.example/2", recs[1].URL)
}

func TestSplitVenueLine(t *testing.T) {
	tests := []struct {
		line        string
		wantAuthors types.Authors
		wantJournal string
	}{
		{"A Smith, B Jones - Nature, 2015 - nature.com", types.Authors{"A Smith", "B Jones"}, "Nature"},
		{"A Smith - arxiv.org", types.Authors{"A Smith"}, ""},
		{"A Smith, B Jones… - Cell, 2020 - cell.com", types.Authors{"A Smith", "B Jones"}, "Cell"},
		{"", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			a, j := splitVenueLine(tt.line)
			assert.Equal(t, tt.wantAuthors, a)
			assert.Equal(t, tt.wantJournal, j)
		})
	}
}

func TestBuildURL(t *testing.T) {
	u, err := BuildURL("https://scholar.google.com/scholar", Query{Keyword: "graph neural networks", Limit: 50, MinYear: 2018})
	require.NoError(t, err)
	assert.Equal(t, "https://scholar.google.com/scholar?as_ylo=2018&hl=en&num=20&q=graph+neural+networks", u)

	u, err = BuildURL("https://scholar.google.com/scholar", Query{Keyword: "x", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "https://scholar.google.com/scholar?hl=en&num=5&q=x", u)

	_, err = BuildURL("", Query{Keyword: "x", Source: SourceMirror})
	assert.Error(t, err)
}
