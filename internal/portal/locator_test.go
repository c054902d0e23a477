package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocator_JSElement(t *testing.T) {
	loc := Query("div.line").Nth(2).Find(".s-expandSidebar")

	assert.Equal(t,
		`document.querySelectorAll("div.line")[2]?.querySelectorAll(".s-expandSidebar")[0]`,
		loc.JSElement())
	assert.Equal(t, "div.line[2] >> .s-expandSidebar[0]", loc.String())
}

func TestLocator_JSCount(t *testing.T) {
	assert.Equal(t, `document.querySelectorAll("a.next_page").length`, Query("a.next_page").JSCount())
	assert.Equal(t,
		`(document.querySelectorAll("div.line")[1]?.querySelectorAll("button[aria-label='Expand']").length ?? 0)`,
		Query("div.line").Nth(1).Find("button[aria-label='Expand']").JSCount())
}

func TestLocator_IsImmutable(t *testing.T) {
	base := Query("div.line")
	a := base.Nth(1)
	b := base.Find("span")

	assert.Equal(t, "div.line[0]", base.String())
	assert.Equal(t, "div.line[1]", a.String())
	assert.Equal(t, "div.line[0] >> span[0]", b.String())
}

func TestLocator_QuotesSelectors(t *testing.T) {
	loc := Query(`div[data-id="x\"y"]`)
	assert.Equal(t, `document.querySelectorAll("div[data-id=\"x\\\"y\"]")[0]`, loc.JSElement())
}

func TestAttrValue(t *testing.T) {
	assert.Equal(t, `'line-12'`, AttrValue("line-12"))
	assert.Equal(t, `'it\'s'`, AttrValue("it's"))
}
