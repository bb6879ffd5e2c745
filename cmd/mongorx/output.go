// Copyright (C) MongoDB, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tidwall/pretty"
	"go.mongodb.org/mongo-driver/bson"
)

// printJSON writes v as indented relaxed extended JSON.
func (c *cli) printJSON(v interface{}) error {
	b, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return errors.Wrap(err, "encoding output")
	}
	b = pretty.PrettyOptions(b, &pretty.Options{Width: 80, Indent: "  "})
	if c.color {
		b = pretty.Color(b, nil)
	}
	_, err = c.out.Write(b)
	return err
}

func (c *cli) println(a ...interface{}) {
	fmt.Fprintln(c.out, a...)
}

// parseDocument parses an extended JSON document given on the command line.
// An empty string is an empty document.
func parseDocument(name, s string) (bson.D, error) {
	doc := bson.D{}
	if s == "" {
		return doc, nil
	}
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, errors.Wrapf(err, "parsing --%s", name)
	}
	return doc, nil
}
