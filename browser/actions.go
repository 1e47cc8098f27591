package browser

import (
	"fmt"
	"time"

	"github.com/BaSui01/testflow/browser/instrument"
)

// actions holds the instrumented form of every session operation.
type actions struct {
	openPage instrument.Func[Void]

	click          instrument.Func[Void]
	doubleClick    instrument.Func[Void]
	getValue       instrument.Func[string]
	setValue       instrument.Func[Void]
	clearValue     instrument.Func[Void]
	getText        instrument.Func[string]
	getAttribute   instrument.Func[string]
	getCSS         instrument.Func[string]
	getTagName     instrument.Func[string]
	countElements  instrument.Func[int]
	moveTo         instrument.Func[Void]
	scrollIntoView instrument.Func[Void]

	waitForExist       instrument.Func[Void]
	waitForVisible     instrument.Func[Void]
	waitForNotVisible  instrument.Func[Void]
	waitToBecomeHidden instrument.Func[Void]
	isBecomeVisible    instrument.Func[bool]
	isBecomeHidden     instrument.Func[bool]

	waitForAlert instrument.Func[string]
	acceptAlert  instrument.Func[Void]
	dismissAlert instrument.Func[Void]
	getAlertText instrument.Func[string]
	execute      instrument.Func[any]
	executeAsync instrument.Func[any]
	screenshot   instrument.Func[string]
	pause        instrument.Func[Void]
	mainTabID    instrument.Func[string]
	listTabs     instrument.Func[[]string]
	switchToTab  instrument.Func[Void]
	closeTab     instrument.Func[Void]
	closeCurrent instrument.Func[bool]
	switchToMain instrument.Func[bool]
}

// registrar registers actions until the first failure.
type registrar struct {
	engine *instrument.Engine
	err    error
}

func add[T any](r *registrar, a instrument.Action[T]) instrument.Func[T] {
	if r.err != nil {
		return nil
	}
	fn, err := instrument.Register(r.engine, a)
	if err != nil {
		r.err = err
		return nil
	}
	return fn
}

func (s *Session) register() error {
	r := &registrar{engine: s.engine}
	a := &s.acts

	a.openPage = add(r, instrument.Action[Void]{
		Name:    "openPage",
		Message: func(args []any) string { return "Open page " + argString(args, 0) },
		Origin:  s.openPage,
	})

	// 元素操作
	a.click = add(r, instrument.Action[Void]{Name: "click", Message: withLoc("Click"), Origin: s.click})
	a.doubleClick = add(r, instrument.Action[Void]{Name: "doubleClick", Message: withLoc("Double-click"), Origin: s.doubleClick})
	a.getValue = add(r, instrument.Action[string]{Name: "getValue", Message: withLoc("Get value of"), Origin: s.getValue})
	a.setValue = add(r, instrument.Action[Void]{
		Name: "setValue",
		Message: func(args []any) string {
			return fmt.Sprintf("Set value of %s to %q", describe(args, 0), argString(args, 1))
		},
		Origin: s.setValue,
	})
	a.clearValue = add(r, instrument.Action[Void]{Name: "clearValue", Message: withLoc("Clear value of"), Origin: s.clearValue})
	a.getText = add(r, instrument.Action[string]{Name: "getText", Message: withLoc("Get text of"), Origin: s.getText})
	a.getAttribute = add(r, instrument.Action[string]{
		Name: "getAttribute",
		Message: func(args []any) string {
			return fmt.Sprintf("Get attribute %q of %s", argString(args, 1), describe(args, 0))
		},
		Origin: s.getAttribute,
	})
	a.getCSS = add(r, instrument.Action[string]{
		Name: "getCSS",
		Message: func(args []any) string {
			return fmt.Sprintf("Get CSS %q of %s", argString(args, 1), describe(args, 0))
		},
		Origin: s.getCSS,
	})
	a.getTagName = add(r, instrument.Action[string]{Name: "getTagName", Message: withLoc("Get tag name of"), Origin: s.getTagName})
	a.countElements = add(r, instrument.Action[int]{Name: "countElements", Message: withLoc("Count elements"), Origin: s.countElements})
	a.moveTo = add(r, instrument.Action[Void]{Name: "moveTo", Message: withLoc("Move pointer to"), Origin: s.moveTo})
	a.scrollIntoView = add(r, instrument.Action[Void]{Name: "scrollIntoView", Message: withLoc("Scroll to"), Origin: s.scrollIntoView})

	// 等待
	a.waitForExist = add(r, instrument.Action[Void]{Name: "waitForExist", Message: waitMessage("to exist"), Origin: s.waitForExist})
	a.waitForVisible = add(r, instrument.Action[Void]{Name: "waitForVisible", Message: waitMessage("to be visible"), Origin: s.waitForVisible})
	a.waitForNotVisible = add(r, instrument.Action[Void]{Name: "waitForNotVisible", Message: waitMessage("to be not visible"), Origin: s.waitForNotVisible})
	a.waitToBecomeHidden = add(r, instrument.Action[Void]{Name: "waitToBecomeHidden", Message: waitMessage("to become hidden"), Origin: s.waitToBecomeHidden})
	a.isBecomeVisible = add(r, instrument.Action[bool]{Name: "isBecomeVisible", Message: waitMessage("to become visible"), Origin: s.isBecomeVisible})
	a.isBecomeHidden = add(r, instrument.Action[bool]{Name: "isBecomeHidden", Message: waitMessage("to become hidden (soft)"), Origin: s.isBecomeHidden})

	// 弹窗
	a.waitForAlert = add(r, instrument.Action[string]{
		Name:    "waitForAlert",
		Message: func(args []any) string { return fmt.Sprintf("Wait for alert (%s)", argDuration(args, 0)) },
		Origin:  s.waitForAlert,
	})
	a.acceptAlert = add(r, instrument.Action[Void]{Name: "acceptAlert", Message: fixed("Accept alert"), Origin: s.acceptAlert})
	a.dismissAlert = add(r, instrument.Action[Void]{Name: "dismissAlert", Message: fixed("Dismiss alert"), Origin: s.dismissAlert})
	a.getAlertText = add(r, instrument.Action[string]{Name: "getAlertText", Message: fixed("Get alert text"), Origin: s.getAlertText})

	// 脚本、截图、暂停
	a.execute = add(r, instrument.Action[any]{Name: "execute", Message: fixed("Execute script"), Origin: s.execute})
	a.executeAsync = add(r, instrument.Action[any]{Name: "executeAsync", Message: fixed("Execute async script"), Origin: s.executeAsync})
	a.screenshot = add(r, instrument.Action[string]{
		Name:    "takeScreenshot",
		Message: func(args []any) string { return "Take screenshot " + argString(args, 0) },
		Origin:  s.takeScreenshot,
	})
	a.pause = add(r, instrument.Action[Void]{
		Name:    "pause",
		Message: func(args []any) string { return fmt.Sprintf("Pause for %s", argDuration(args, 0)) },
		Origin:  s.pause,
	})

	// 标签页
	a.mainTabID = add(r, instrument.Action[string]{Name: "mainTabID", Message: fixed("Get main tab"), Origin: s.mainTabID})
	a.listTabs = add(r, instrument.Action[[]string]{Name: "listTabs", Message: fixed("List tabs"), Origin: s.listTabs})
	a.switchToTab = add(r, instrument.Action[Void]{
		Name:    "switchToTab",
		Message: func(args []any) string { return "Switch to tab " + argString(args, 0) },
		Origin:  s.switchToTab,
	})
	a.closeTab = add(r, instrument.Action[Void]{
		Name:    "closeTab",
		Message: func(args []any) string { return "Close tab " + argString(args, 0) },
		Origin:  s.closeTab,
	})
	a.closeCurrent = add(r, instrument.Action[bool]{Name: "closeCurrentTab", Message: fixed("Close current tab"), Origin: s.closeCurrentTab})
	a.switchToMain = add(r, instrument.Action[bool]{Name: "switchToMainTab", Message: fixed("Switch to main tab"), Origin: s.switchToMainTab})

	return r.err
}

func fixed(msg string) func([]any) string {
	return func([]any) string { return msg }
}

func waitMessage(what string) func([]any) string {
	return func(args []any) string {
		msg := fmt.Sprintf("Wait for %s %s", describe(args, 0), what)
		if d := argDuration(args, 1); d > 0 {
			msg += fmt.Sprintf(" (%s)", d.Round(time.Millisecond))
		}
		return msg
	}
}
