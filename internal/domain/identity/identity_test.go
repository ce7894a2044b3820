package identity

import (
	"context"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestIdentity(t *testing.T) {
	Convey("Given a request with identity headers", t, func() {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(HeaderUserID, " u-42 ")
		r.Header.Set(HeaderRole, "Coach")

		Convey("Then it round trips through a context", func() {
			id := FromRequest(r)
			So(id, ShouldResemble, Identity{UserID: "u-42", Role: "coach"})

			ctx := WithIdentity(context.Background(), id)
			So(FromContext(ctx), ShouldResemble, id)
			So(FromContext(ctx).Anonymous(), ShouldBeFalse)
		})

		Convey("Then a bare context is anonymous", func() {
			So(FromContext(context.Background()).Anonymous(), ShouldBeTrue)
		})
	})
}
