package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	var nilXPath *XPath

	tests := []struct {
		name          string
		loc           Locator
		allowMultiple bool
		want          string
	}{
		{name: "nil resolves to root", loc: nil, want: Root},
		{name: "typed nil resolves to root", loc: nilXPath, want: Root},
		{name: "empty css resolves to root", loc: CSS(""), want: Root},
		{name: "css passes through", loc: CSS("#login"), want: "#login"},
		{name: "raw passes through regardless of multiplicity", loc: Raw("//a"), allowMultiple: false, want: "//a"},
		{name: "structured single", loc: Tag("button"), want: "(//button)[1]"},
		{name: "structured multiple", loc: Tag("button"), allowMultiple: true, want: "//button"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.loc, tt.allowMultiple))
		})
	}
}

func TestXPath_Render(t *testing.T) {
	loc := Tag("form").WithID("login").
		Descendant("button").WithAttr("type", "submit").WithText("Sign in")

	assert.Equal(t,
		`//form[@id="login"]//button[@type="submit"][contains(normalize-space(.), "Sign in")]`,
		loc.Render(true))
	assert.Equal(t,
		`(//form[@id="login"]//button[@type="submit"][contains(normalize-space(.), "Sign in")])[1]`,
		loc.Render(false))
}

func TestXPath_ClassIndexAndChild(t *testing.T) {
	loc := Any().WithClass("row").At(2).Child("td")
	assert.Equal(t,
		`//*[contains(concat(" ", normalize-space(@class), " "), " row ")][2]/td`,
		loc.Render(true))
}

func TestXPath_BuildersDoNotAlias(t *testing.T) {
	base := Tag("li")
	first := base.WithText("one")
	second := base.WithText("two")

	assert.Equal(t, "//li", base.Render(true))
	assert.Equal(t, `//li[contains(normalize-space(.), "one")]`, first.Render(true))
	assert.Equal(t, `//li[contains(normalize-space(.), "two")]`, second.Render(true))
}

func TestLiteralQuoting(t *testing.T) {
	assert.Equal(t, `"plain"`, literal("plain"))
	assert.Equal(t, `'say "hi"'`, literal(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"')`, literal(`it's "quoted"`))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "<root>", Describe(nil))
	assert.Equal(t, "css .nav", Describe(CSS(".nav")))
	assert.Equal(t, "Login button", Describe(Tag("button").Named("Login button")))
	assert.Equal(t, "//a", Describe(Raw("//a")))
}

func TestIsRoot(t *testing.T) {
	assert.True(t, IsRoot(nil))
	assert.True(t, IsRoot(Raw(Root)))
	assert.False(t, IsRoot(CSS("body")))
}
