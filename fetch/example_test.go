package fetch_test

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/nativefetch/fetch"
)

func ExampleValidate() {
	err := fetch.Validate(fetch.Options{
		URL:                "ftp://example.com/report.csv",
		DisableAllSecurity: true,
		FileName:           "../report.csv",
	})

	var fields fetch.FieldErrors
	if errors.As(err, &fields) {
		for _, f := range fields {
			fmt.Println(f.Field+":", f.Err)
		}
	}
	// Output:
	// url: url must be an absolute http or https URL
	// fileName: fileName must be a plain file name
}
